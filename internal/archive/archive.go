// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package archive rebuilds the MyPyTutor application archive. The archive is
// reconstructed from scratch on every run so stale entries never survive: any
// existing archive is deleted first, then every library source file under the
// application source directory plus the fixed top-level files are packed into
// a fresh zip.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
)

// sourcePattern selects the library files packed from the source directory.
const sourcePattern = "*.py"

// Builder constructs the application archive on a filesystem.
type Builder struct {
	Fs afero.Fs
}

// NewBuilder returns a Builder on the given filesystem. A nil fs means the
// operating system filesystem.
func NewBuilder(fs afero.Fs) *Builder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Builder{Fs: fs}
}

// BuildAppArchive writes a fresh application archive at archivePath. It packs
// every *.py file under sourceDir (recursively) plus the given top-level
// files, and nothing else. All paths are relative to workDir; entry names use
// forward slashes and are sorted so the archive is deterministic.
func (b *Builder) BuildAppArchive(workDir, archivePath string, sourceDir string, topFiles []string) error {
	target := filepath.Join(workDir, archivePath)

	// Delete any pre-existing archive so the rebuild starts clean.
	if err := b.Fs.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale archive %s: %w", target, err)
	}

	entries, err := b.collect(workDir, sourceDir, topFiles)
	if err != nil {
		return err
	}
	sort.Strings(entries)

	f, err := b.Fs.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", target, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, name := range entries {
		if err := b.addFile(zw, workDir, name); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive %s: %w", target, err)
	}
	return nil
}

// collect returns the archive entry names: every file matching the source
// pattern under sourceDir plus exactly the fixed top-level files.
func (b *Builder) collect(workDir, sourceDir string, topFiles []string) ([]string, error) {
	var entries []string

	root := filepath.Join(workDir, sourceDir)
	err := afero.Walk(b.Fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		ok, err := filepath.Match(sourcePattern, fi.Name())
		if err != nil || !ok {
			return err
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		entries = append(entries, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	for _, name := range topFiles {
		if _, err := b.Fs.Stat(filepath.Join(workDir, name)); err != nil {
			return nil, fmt.Errorf("missing top-level file %s: %w", name, err)
		}
		entries = append(entries, filepath.ToSlash(name))
	}
	return entries, nil
}

func (b *Builder) addFile(zw *zip.Writer, workDir, name string) error {
	src, err := b.Fs.Open(filepath.Join(workDir, filepath.FromSlash(name)))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return nil
}
