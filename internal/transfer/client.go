// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package transfer provides authenticated file transfer against the course
// server. A batch of declarative transfer requests is executed in order over
// a single SFTP session; sessions are opened through a Dialer, which
// enforces the server's login rate limit.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Direction of a transfer request.
type Direction int

const (
	// Get downloads Remote into Local.
	Get Direction = iota
	// Put uploads Local to Remote, overwriting any existing remote file.
	Put
)

// String returns the lowercase name of the direction.
func (d Direction) String() string {
	if d == Get {
		return "get"
	}
	return "put"
}

// Request is one declarative transfer: copy Local to Remote or Remote to
// Local depending on Direction.
type Request struct {
	Direction Direction
	Local     string
	Remote    string
}

// Client is one authenticated session against the remote host.
type Client interface {
	// Get downloads the remote file to the local path.
	Get(localPath, remotePath string) error
	// Put uploads the local file to the remote path, overwriting it.
	Put(localPath, remotePath string) error
	// Upload writes the contents of r to the remote path.
	Upload(r io.Reader, remotePath string) error
	// Remove deletes the remote file.
	Remove(remotePath string) error
	// MkdirAll creates the remote directory and any missing parents.
	MkdirAll(remotePath string) error
	// ReadDir lists a remote directory.
	ReadDir(remotePath string) ([]os.FileInfo, error)
	// Chtimes sets the modification time of a remote file.
	Chtimes(remotePath string, mtime time.Time) error
	// Close tears the session down.
	Close() error
}

// Dialer opens a new session against the remote host.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}

// ExecuteBatch runs the requests in order over a single session and stops at
// the first failure.
func ExecuteBatch(ctx context.Context, d Dialer, batch []Request) error {
	c, err := d.Dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, req := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch req.Direction {
		case Get:
			err = c.Get(req.Local, req.Remote)
		case Put:
			err = c.Put(req.Local, req.Remote)
		default:
			err = fmt.Errorf("unknown transfer direction %d", req.Direction)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", req.Direction, req.Remote, err)
		}
	}
	return nil
}

// ThrottledDialer enforces a minimum delay between consecutive logins. The
// first login is immediate; each later one waits out the remainder of the
// delay since the previous login. This satisfies the server-side rate limit
// without scattering sleeps through the pipeline.
type ThrottledDialer struct {
	next  Dialer
	delay time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewThrottledDialer wraps next with a minimum inter-login delay.
func NewThrottledDialer(next Dialer, delay time.Duration) *ThrottledDialer {
	return &ThrottledDialer{next: next, delay: delay}
}

// Dial waits until the rate limit allows another login, then dials.
func (d *ThrottledDialer) Dial(ctx context.Context) (Client, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	return d.next.Dial(ctx)
}

func (d *ThrottledDialer) wait(ctx context.Context) error {
	d.mu.Lock()
	var pause time.Duration
	if !d.last.IsZero() {
		if elapsed := time.Since(d.last); elapsed < d.delay {
			pause = d.delay - elapsed
		}
	}
	d.last = time.Now().Add(pause)
	d.mu.Unlock()

	if pause <= 0 {
		return nil
	}
	t := time.NewTimer(pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
