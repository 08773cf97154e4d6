package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateAndCleanup(t *testing.T) {
	m := NewManager(t.TempDir())

	if err := m.Create(); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	path := m.Path()
	if !strings.Contains(filepath.Base(path), "relforge-") {
		t.Errorf("workspace dir %q missing relforge prefix", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("workspace dir not created: %v", err)
	}

	if err := m.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("workspace dir still exists after cleanup")
	}
	if m.Path() != "" {
		t.Error("Path not reset after cleanup")
	}
}

func TestBranchDirsAreIsolated(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Create(); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer m.Cleanup()

	linux, err := m.BranchDir("linux")
	if err != nil {
		t.Fatalf("BranchDir(linux) failed: %v", err)
	}
	windows, err := m.BranchDir("windows")
	if err != nil {
		t.Fatalf("BranchDir(windows) failed: %v", err)
	}

	if linux == windows {
		t.Error("branch dirs must be distinct")
	}
	if err := os.WriteFile(filepath.Join(linux, "out"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(windows, "out")); !os.IsNotExist(err) {
		t.Error("file leaked across branch dirs")
	}
}

func TestBranchDirBeforeCreate(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.BranchDir("linux"); err == nil {
		t.Error("expected error before Create")
	}
}

func TestDiskUsage(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	defer m.Cleanup()

	dir, _ := m.BranchDir("linux")
	if err := os.WriteFile(filepath.Join(dir, "bin"), make([]byte, 1024), 0o600); err != nil {
		t.Fatal(err)
	}

	size, err := m.DiskUsage()
	if err != nil {
		t.Fatalf("DiskUsage failed: %v", err)
	}
	if size < 1024 {
		t.Errorf("DiskUsage = %d, want >= 1024", size)
	}
}
