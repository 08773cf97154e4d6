package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho fake binary\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateContainsExactlyOneEntry(t *testing.T) {
	dir := t.TempDir()
	exe := writeExecutable(t, dir, "chatifier")
	dest := filepath.Join(dir, "chatifier-linux.zip")

	if err := ForOS("linux").Create(exe, dest); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	r, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer r.Close()

	if len(r.File) != 1 {
		t.Fatalf("archive has %d entries, want 1", len(r.File))
	}
	entry := r.File[0]
	if entry.Name != "chatifier" {
		t.Errorf("entry name = %q, want base name", entry.Name)
	}
	if entry.Mode()&0o100 == 0 {
		t.Error("executable bit lost in archive")
	}

	rc, err := entry.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("archived executable is empty")
	}
}

func TestForOSSelection(t *testing.T) {
	// Selection is OS-conditional; both families must exist and both must
	// produce readable zips.
	dir := t.TempDir()
	exe := writeExecutable(t, dir, "chatifier.exe")

	for _, osID := range []string{"windows", "linux", "darwin"} {
		dest := filepath.Join(dir, osID+".zip")
		if err := ForOS(osID).Create(exe, dest); err != nil {
			t.Fatalf("Create(%s) failed: %v", osID, err)
		}
		r, err := zip.OpenReader(dest)
		if err != nil {
			t.Fatalf("archive for %s unreadable: %v", osID, err)
		}
		r.Close()
	}
}

func TestCreateMissingExecutable(t *testing.T) {
	dir := t.TempDir()
	err := ForOS("linux").Create(filepath.Join(dir, "missing"), filepath.Join(dir, "out.zip"))
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestCreateRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	err := ForOS("linux").Create(dir, filepath.Join(dir, "out.zip"))
	if err == nil {
		t.Fatal("expected error for directory source")
	}
}
