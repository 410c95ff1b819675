// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/mypytutor/mptsync/internal/model"
)

// Backup writes a zstd-compressed JSON export of the history database to w.
func Backup(w io.Writer, st Store) error {
	data, err := st.ExportData()
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer func() { _ = zw.Close() }()

	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return zw.Close() // flush the frame; the deferred Close is then a no-op
}

// Restore reads a zstd-compressed JSON backup and imports it via the Store,
// replacing the current contents.
func Restore(r io.Reader, st Store) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var data model.BackupData
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}
	return st.ImportData(&data)
}
