package runner

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestRunCapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX tools")
	}

	r := New(t.TempDir())
	res, err := r.Run(context.Background(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("Output = %q, want hello", res.Output)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRunNonzeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX tools")
	}

	r := New(t.TempDir())
	res, err := r.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if res == nil {
		t.Fatal("result must be returned alongside the error")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Output, "broken") {
		t.Errorf("stderr not captured: %q", res.Output)
	}
}

func TestRunMissingTool(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Run(context.Background(), "definitely-not-a-real-tool-xyz")
	if err == nil {
		t.Fatal("expected error for missing tool")
	}
	if !strings.Contains(err.Error(), "not found on PATH") {
		t.Errorf("err = %v, want lookup failure", err)
	}
}

func TestRunLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX tools")
	}

	r := New(t.TempDir())
	res, err := r.RunLine(context.Background(), "echo a b c")
	if err != nil {
		t.Fatalf("RunLine failed: %v", err)
	}
	if !strings.Contains(res.Output, "a b c") {
		t.Errorf("Output = %q", res.Output)
	}

	if _, err := r.RunLine(context.Background(), "   "); err == nil {
		t.Error("expected error for empty command line")
	}
}

func TestRunRespectsWorkingDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX tools")
	}

	dir := t.TempDir()
	r := New(dir)
	res, err := r.Run(context.Background(), "pwd")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(res.Output, dir) {
		t.Errorf("pwd = %q, want %q", res.Output, dir)
	}
}
