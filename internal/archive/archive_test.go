// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fs afero.Fs, name, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, name, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readArchive(t *testing.T, fs afero.Fs, name string) map[string]string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = string(body)
	}
	return out
}

func TestBuildAppArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/work/tutorlib/a.py", "print('a')")
	writeFile(t, fs, "/work/tutorlib/sub/b.py", "print('b')")
	writeFile(t, fs, "/work/tutorlib/notes.txt", "not code")
	writeFile(t, fs, "/work/MyPyTutor.py", "entry")
	writeFile(t, fs, "/work/MyPyTutor.pyw", "gui entry")

	b := NewBuilder(fs)
	err := b.BuildAppArchive("/work", "MyPyTutor35.zip", "tutorlib", []string{"MyPyTutor.py", "MyPyTutor.pyw"})
	if err != nil {
		t.Fatalf("BuildAppArchive: %v", err)
	}

	got := readArchive(t, fs, "/work/MyPyTutor35.zip")
	want := map[string]string{
		"tutorlib/a.py":     "print('a')",
		"tutorlib/sub/b.py": "print('b')",
		"MyPyTutor.py":      "entry",
		"MyPyTutor.pyw":     "gui entry",
	}
	if len(got) != len(want) {
		t.Fatalf("archive entries = %v, want %v", keys(got), keys(want))
	}
	for name, content := range want {
		if got[name] != content {
			t.Errorf("entry %s = %q, want %q", name, got[name], content)
		}
	}
	if _, ok := got["tutorlib/notes.txt"]; ok {
		t.Error("non-source file was packed into the archive")
	}
}

func TestBuildAppArchiveReplacesStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/work/MyPyTutor35.zip", "not a zip at all")
	writeFile(t, fs, "/work/tutorlib/a.py", "print('a')")
	writeFile(t, fs, "/work/MyPyTutor.py", "entry")

	b := NewBuilder(fs)
	err := b.BuildAppArchive("/work", "MyPyTutor35.zip", "tutorlib", []string{"MyPyTutor.py"})
	if err != nil {
		t.Fatalf("BuildAppArchive: %v", err)
	}

	got := readArchive(t, fs, "/work/MyPyTutor35.zip")
	if len(got) != 2 {
		t.Errorf("archive entries = %v, want a fresh two-entry archive", keys(got))
	}
}

func TestBuildAppArchiveMissingTopFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/work/tutorlib/a.py", "print('a')")

	b := NewBuilder(fs)
	err := b.BuildAppArchive("/work", "MyPyTutor35.zip", "tutorlib", []string{"MyPyTutor.py"})
	if err == nil {
		t.Fatal("expected error for missing top-level file")
	}
	if exists, _ := afero.Exists(fs, "/work/MyPyTutor35.zip"); exists {
		t.Error("archive was created despite the missing top-level file")
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
