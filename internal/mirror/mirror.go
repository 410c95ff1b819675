// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package mirror synchronizes a local directory one-way onto a remote
// directory over an SFTP session: files present locally are uploaded, remote
// files absent locally are deleted. After a successful mirror the remote tree
// is an exact copy of the local one.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/mypytutor/mptsync/internal/transfer"
)

// FileAttributes contains the metadata used for comparing local and remote
// files. Modification times are compared at second granularity because SFTP
// servers do not reliably preserve sub-second precision.
type FileAttributes struct {
	Size    int64
	ModTime time.Time
}

// Equal reports whether two files can be considered unchanged.
func (a FileAttributes) Equal(other FileAttributes) bool {
	return a.Size == other.Size && a.ModTime.Truncate(time.Second).Equal(other.ModTime.Truncate(time.Second))
}

// Snapshot maps slash-separated relative paths to file attributes.
type Snapshot map[string]FileAttributes

// Diff returns the paths that need to be uploaded to and removed from the
// remote tree to make it match the local one.
func (local Snapshot) Diff(remote Snapshot) (toUpload, toRemove []string) {
	for p, attr := range local {
		curr, ok := remote[p]
		if !ok || !curr.Equal(attr) {
			toUpload = append(toUpload, p)
		}
	}
	for p := range remote {
		if _, ok := local[p]; !ok {
			toRemove = append(toRemove, p)
		}
	}
	sort.Strings(toUpload)
	sort.Strings(toRemove)
	return toUpload, toRemove
}

// Mirrorer pushes local directories to the remote host.
type Mirrorer struct {
	Fs afero.Fs
}

// NewMirrorer returns a Mirrorer reading from the given filesystem. A nil fs
// means the operating system filesystem.
func NewMirrorer(fs afero.Fs) *Mirrorer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Mirrorer{Fs: fs}
}

// Mirror makes remoteRoot an exact copy of localRoot over the given session.
func (m *Mirrorer) Mirror(ctx context.Context, c transfer.Client, localRoot, remoteRoot string) error {
	local, err := m.snapshotLocal(localRoot)
	if err != nil {
		return fmt.Errorf("failed to snapshot local directory %s: %w", localRoot, err)
	}

	if err := c.MkdirAll(remoteRoot); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", remoteRoot, err)
	}
	remote, remoteDirs, err := snapshotRemote(c, remoteRoot)
	if err != nil {
		return fmt.Errorf("failed to snapshot remote directory %s: %w", remoteRoot, err)
	}

	toUpload, toRemove := local.Diff(remote)

	for _, p := range toUpload {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.upload(c, localRoot, remoteRoot, p, local[p]); err != nil {
			return err
		}
	}

	for _, p := range toRemove {
		if err := ctx.Err(); err != nil {
			return err
		}
		rp := path.Join(remoteRoot, p)
		if err := c.Remove(rp); err != nil {
			return fmt.Errorf("failed to remove remote file %s: %w", rp, err)
		}
	}

	// Drop remote directories that no longer exist locally. Deepest first so
	// they are empty by the time we reach them.
	sort.Sort(sort.Reverse(sort.StringSlice(remoteDirs)))
	for _, p := range remoteDirs {
		if m.localDirExists(localRoot, p) {
			continue
		}
		// Best effort: a non-empty directory here means a live file we just
		// uploaded, which cannot happen for a dir absent locally.
		_ = c.Remove(path.Join(remoteRoot, p))
	}

	return nil
}

func (m *Mirrorer) localDirExists(localRoot, rel string) bool {
	fi, err := m.Fs.Stat(filepath.Join(localRoot, filepath.FromSlash(rel)))
	return err == nil && fi.IsDir()
}

func (m *Mirrorer) upload(c transfer.Client, localRoot, remoteRoot, rel string, attr FileAttributes) error {
	if dir := path.Dir(rel); dir != "." {
		if err := c.MkdirAll(path.Join(remoteRoot, dir)); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}

	src, err := m.Fs.Open(filepath.Join(localRoot, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("failed to open local file %s: %w", rel, err)
	}
	defer src.Close()

	rp := path.Join(remoteRoot, rel)
	if err := c.Upload(src, rp); err != nil {
		return err
	}
	// Propagate the local mtime so the next run can skip unchanged files.
	if err := c.Chtimes(rp, attr.ModTime); err != nil {
		return fmt.Errorf("failed to set mtime on %s: %w", rp, err)
	}
	return nil
}

// snapshotLocal walks the local tree and records every regular file.
func (m *Mirrorer) snapshotLocal(root string) (Snapshot, error) {
	snapshot := Snapshot{}
	err := afero.Walk(m.Fs, root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("path %s escapes mirror root", p)
		}
		snapshot[filepath.ToSlash(rel)] = FileAttributes{Size: fi.Size(), ModTime: fi.ModTime()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// snapshotRemote walks the remote tree, returning its files and the relative
// paths of its subdirectories.
func snapshotRemote(c transfer.Client, root string) (Snapshot, []string, error) {
	snapshot := Snapshot{}
	var dirs []string

	var walk func(rel string) error
	walk = func(rel string) error {
		infos, err := c.ReadDir(path.Join(root, rel))
		if err != nil {
			return err
		}
		for _, fi := range infos {
			childRel := fi.Name()
			if rel != "" {
				childRel = path.Join(rel, fi.Name())
			}
			if fi.IsDir() {
				dirs = append(dirs, childRel)
				if err := walk(childRel); err != nil {
					return err
				}
				continue
			}
			snapshot[childRel] = FileAttributes{Size: fi.Size(), ModTime: fi.ModTime()}
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, nil, err
	}
	return snapshot, dirs, nil
}
