// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package extcmd

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests shell out to sh")
	}
}

func TestOutputVerbatim(t *testing.T) {
	requireSh(t)
	r := &ExecRunner{}
	out, err := r.Output(context.Background(), []string{"sh", "-c", "printf '35\\n'"})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	// Trailing whitespace is preserved, not trimmed.
	if string(out) != "35\n" {
		t.Errorf("out = %q, want %q", out, "35\n")
	}
}

func TestRunFailureIncludesStderr(t *testing.T) {
	requireSh(t)
	r := &ExecRunner{}
	err := r.Run(context.Background(), []string{"sh", "-c", "echo 'missing target' >&2; exit 2"})
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "missing target") {
		t.Errorf("error = %v, want the command's stderr folded in", err)
	}
}

func TestRunInDir(t *testing.T) {
	requireSh(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("here"), 0644); err != nil {
		t.Fatal(err)
	}
	r := &ExecRunner{Dir: dir}
	out, err := r.Output(context.Background(), []string{"cat", "marker"})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if string(out) != "here" {
		t.Errorf("out = %q, want %q", out, "here")
	}
}

func TestEmptyCommand(t *testing.T) {
	r := &ExecRunner{}
	if err := r.Run(context.Background(), nil); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := r.Output(context.Background(), nil); err == nil {
		t.Error("expected error for empty command")
	}
}
