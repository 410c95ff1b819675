// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FakeFile is one remote file held by a FakeClient.
type FakeFile struct {
	Data    []byte
	ModTime time.Time
}

// FakeClient is an in-memory Client used by tests across packages. The
// "remote" side is a map keyed by slash-separated paths; the local side is
// an afero filesystem.
type FakeClient struct {
	Fs         afero.Fs
	Remote     map[string]*FakeFile
	RemoteDirs map[string]bool

	// Log records every operation in order, e.g. "put local -> remote".
	Log []string
	// FailOn makes any operation whose log line contains the substring fail.
	FailOn string
	Closed bool
}

// NewFakeClient returns an empty FakeClient over the given local filesystem.
func NewFakeClient(fs afero.Fs) *FakeClient {
	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	return &FakeClient{
		Fs:         fs,
		Remote:     map[string]*FakeFile{},
		RemoteDirs: map[string]bool{},
	}
}

func (c *FakeClient) op(line string) error {
	c.Log = append(c.Log, line)
	if c.FailOn != "" && strings.Contains(line, c.FailOn) {
		return fmt.Errorf("injected failure on %q", line)
	}
	return nil
}

// Get copies a remote file to the local filesystem.
func (c *FakeClient) Get(localPath, remotePath string) error {
	if err := c.op("get " + remotePath + " -> " + localPath); err != nil {
		return err
	}
	f, ok := c.Remote[remotePath]
	if !ok {
		return fmt.Errorf("remote file %s does not exist", remotePath)
	}
	return afero.WriteFile(c.Fs, localPath, f.Data, 0644)
}

// Put copies a local file to the remote map.
func (c *FakeClient) Put(localPath, remotePath string) error {
	if err := c.op("put " + localPath + " -> " + remotePath); err != nil {
		return err
	}
	data, err := afero.ReadFile(c.Fs, localPath)
	if err != nil {
		return err
	}
	c.Remote[remotePath] = &FakeFile{Data: data, ModTime: time.Now()}
	return nil
}

// Upload stores the reader's contents as a remote file.
func (c *FakeClient) Upload(r io.Reader, remotePath string) error {
	if err := c.op("upload -> " + remotePath); err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	c.Remote[remotePath] = &FakeFile{Data: buf.Bytes(), ModTime: time.Now()}
	return nil
}

// Remove deletes a remote file, or a remote directory if it is empty.
func (c *FakeClient) Remove(remotePath string) error {
	if err := c.op("remove " + remotePath); err != nil {
		return err
	}
	if _, ok := c.Remote[remotePath]; ok {
		delete(c.Remote, remotePath)
		return nil
	}
	if c.RemoteDirs[remotePath] {
		for p := range c.Remote {
			if strings.HasPrefix(p, remotePath+"/") {
				return fmt.Errorf("directory %s not empty", remotePath)
			}
		}
		delete(c.RemoteDirs, remotePath)
		return nil
	}
	return fmt.Errorf("remote path %s does not exist", remotePath)
}

// MkdirAll records the directory and all its parents.
func (c *FakeClient) MkdirAll(remotePath string) error {
	if err := c.op("mkdir " + remotePath); err != nil {
		return err
	}
	for p := remotePath; p != "/" && p != "." && p != ""; p = path.Dir(p) {
		c.RemoteDirs[p] = true
	}
	return nil
}

// ReadDir lists the immediate children of a remote directory.
func (c *FakeClient) ReadDir(remotePath string) ([]os.FileInfo, error) {
	if err := c.op("readdir " + remotePath); err != nil {
		return nil, err
	}
	seen := map[string]os.FileInfo{}
	for p, f := range c.Remote {
		if rel, ok := childOf(remotePath, p); ok {
			if !strings.Contains(rel, "/") {
				seen[rel] = fakeFileInfo{name: rel, size: int64(len(f.Data)), modTime: f.ModTime}
			}
		}
	}
	for p := range c.RemoteDirs {
		if rel, ok := childOf(remotePath, p); ok && !strings.Contains(rel, "/") {
			seen[rel] = fakeFileInfo{name: rel, dir: true}
		}
	}
	var names []string
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]os.FileInfo, 0, len(names))
	for _, n := range names {
		out = append(out, seen[n])
	}
	return out, nil
}

// Chtimes sets a remote file's modification time.
func (c *FakeClient) Chtimes(remotePath string, mtime time.Time) error {
	if err := c.op("chtimes " + remotePath); err != nil {
		return err
	}
	f, ok := c.Remote[remotePath]
	if !ok {
		return fmt.Errorf("remote file %s does not exist", remotePath)
	}
	f.ModTime = mtime
	return nil
}

// Close marks the session closed.
func (c *FakeClient) Close() error {
	c.Closed = true
	return nil
}

func childOf(dir, p string) (string, bool) {
	if !strings.HasPrefix(p, dir+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, dir+"/"), true
}

type fakeFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (fi fakeFileInfo) Name() string       { return fi.name }
func (fi fakeFileInfo) Size() int64        { return fi.size }
func (fi fakeFileInfo) Mode() os.FileMode  { return 0644 }
func (fi fakeFileInfo) ModTime() time.Time { return fi.modTime }
func (fi fakeFileInfo) IsDir() bool        { return fi.dir }
func (fi fakeFileInfo) Sys() interface{}   { return nil }

// FakeDialer hands out the same FakeClient for every session.
type FakeDialer struct {
	Client *FakeClient
	Err    error
	Dials  int
}

// Dial returns the fake session, or the configured error.
func (d *FakeDialer) Dial(ctx context.Context) (Client, error) {
	d.Dials++
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Client, nil
}
