// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package transfer

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"context"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
)

// HostKeyStore looks up the pinned public key for a host. An empty key means
// the host has not been trusted yet.
type HostKeyStore interface {
	GetKnownHostKey(hostname string) (string, error)
}

// SSHDialer opens SFTP sessions against one fixed host.
type SSHDialer struct {
	Host string
	User string
	// PrivateKey is the PEM-encoded deploy key. Empty means agent-only auth.
	PrivateKey []byte
	// Passphrase decrypts PrivateKey when it is encrypted.
	Passphrase []byte
	// Hosts is consulted to verify the server's host key.
	Hosts HostKeyStore
	// Fs is the local filesystem side of transfers.
	Fs afero.Fs
}

// Dial establishes the SSH connection and SFTP subsystem. It tries the deploy
// key first and falls back to the SSH agent on authentication failure.
func (d *SSHDialer) Dial(ctx context.Context) (Client, error) {
	hostKeyCallback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		// The hostname passed to the callback can include the port. We need to
		// strip it to ensure we're looking up the correct pinned key.
		host, _, err := net.SplitHostPort(hostname)
		if err != nil {
			// If SplitHostPort fails, it means there was no port, so we use the original string.
			host = hostname
		}

		// The key is presented in the format "ssh-ed25519 AAA..."
		presentedKey := string(ssh.MarshalAuthorizedKey(key))

		knownKey, err := d.Hosts.GetKnownHostKey(host)
		if err != nil {
			return fmt.Errorf("failed to query known_hosts store: %w", err)
		}

		// If we don't have a key, this is the first connection.
		if knownKey == "" {
			return fmt.Errorf("unknown host key for %s. run 'mptsync trust-host' to add it", host)
		}

		// If the key exists, it must match exactly.
		if knownKey != presentedKey {
			return fmt.Errorf("!!! HOST KEY MISMATCH FOR %s !!!\nRemote key presented: %s\nThis could be a man-in-the-middle attack", host, presentedKey)
		}

		return nil // Host key is trusted.
	}

	// Add port 22 if not specified.
	addr := d.Host
	if _, _, err := net.SplitHostPort(d.Host); err != nil {
		addr = net.JoinHostPort(d.Host, "22")
	}

	var finalErr error

	// --- Attempt 1: Use the deploy key exclusively ---
	if len(d.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if len(d.Passphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(d.PrivateKey, d.Passphrase)
		} else {
			signer, err = ssh.ParsePrivateKey(d.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}

		config := &ssh.ClientConfig{
			User:            d.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         10 * time.Second,
		}

		client, err := ssh.Dial("tcp", addr, config)
		if err == nil {
			return newSFTPClient(client, d.localFs())
		}

		// If the error was not an auth failure, we should fail fast.
		if !strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("connection with deploy key failed: %w", err)
		}
		// It was an auth error, so we'll store it and try the agent.
		finalErr = err
	}

	// --- Attempt 2: Use the SSH agent as a fallback ---
	agentClient := getSSHAgent()
	if agentClient == nil {
		if finalErr != nil { // This means the private key auth failed before this.
			return nil, fmt.Errorf("deploy key authentication failed, and no SSH agent available for fallback: %w", finalErr)
		}
		return nil, fmt.Errorf("no authentication method available (no deploy key provided and no ssh agent found)")
	}

	config := &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("connection with ssh agent failed: %w", err)
	}

	return newSFTPClient(client, d.localFs())
}

func (d *SSHDialer) localFs() afero.Fs {
	if d.Fs != nil {
		return d.Fs
	}
	return afero.NewOsFs()
}

// sftpClient is a Client backed by an SFTP subsystem over SSH.
type sftpClient struct {
	client *ssh.Client
	sftp   *sftp.Client
	fs     afero.Fs
}

func newSFTPClient(client *ssh.Client, fs afero.Fs) (Client, error) {
	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	return &sftpClient{client: client, sftp: sc, fs: fs}, nil
}

// Get downloads the remote file to the local path.
func (c *sftpClient) Get(localPath, remotePath string) error {
	src, err := c.sftp.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	dst, err := c.fs.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to read from remote file %s: %w", remotePath, err)
	}
	return dst.Close()
}

// Put uploads the local file to the remote path, overwriting any remote copy.
func (c *sftpClient) Put(localPath, remotePath string) error {
	src, err := c.fs.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file %s: %w", localPath, err)
	}
	defer src.Close()
	return c.Upload(src, remotePath)
}

// Upload writes r to the remote path, overwriting any remote copy.
func (c *sftpClient) Upload(r io.Reader, remotePath string) error {
	dst, err := c.sftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		// Best effort to clean up the failed upload
		_ = c.sftp.Remove(remotePath)
		return fmt.Errorf("failed to write to remote file %s: %w", remotePath, err)
	}
	return dst.Close()
}

// Remove deletes the remote file.
func (c *sftpClient) Remove(remotePath string) error {
	return c.sftp.Remove(remotePath)
}

// MkdirAll creates the remote directory and any missing parents.
func (c *sftpClient) MkdirAll(remotePath string) error {
	return c.sftp.MkdirAll(remotePath)
}

// ReadDir lists a remote directory.
func (c *sftpClient) ReadDir(remotePath string) ([]os.FileInfo, error) {
	return c.sftp.ReadDir(remotePath)
}

// Chtimes sets the modification time of a remote file.
func (c *sftpClient) Chtimes(remotePath string, mtime time.Time) error {
	return c.sftp.Chtimes(remotePath, mtime, mtime)
}

// Close closes the underlying SSH and SFTP clients.
func (c *sftpClient) Close() error {
	if c.sftp != nil {
		c.sftp.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// GetRemoteHostKey connects to a host just to retrieve its public key.
func GetRemoteHostKey(host string) (ssh.PublicKey, error) {
	keyChan := make(chan ssh.PublicKey, 1)

	config := &ssh.ClientConfig{
		// We don't need to authenticate for this, just start the handshake.
		User: "mptsync-probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			// We got the key, send it back on the channel.
			keyChan <- key
			// Return a specific error to gracefully stop the handshake.
			return fmt.Errorf("mptsync: successfully retrieved host key")
		},
		Timeout: 5 * time.Second,
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	// We expect ssh.Dial to fail with our specific error.
	_, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		// Check if it's our specific error.
		if strings.Contains(err.Error(), "mptsync: successfully retrieved host key") {
			// Success, the key is in the channel.
			return <-keyChan, nil
		}
		// It's a different, real error (e.g., connection refused).
		return nil, fmt.Errorf("failed to connect to %s: %w", host, err)
	}

	// This case should ideally not be reached if the callback returns an error.
	return nil, fmt.Errorf("ssh.Dial succeeded unexpectedly, could not retrieve key")
}
