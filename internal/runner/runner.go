// Package runner executes external build tooling for pipeline steps.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/relforge/internal/logfields"
)

// Result captures the outcome of one command invocation.
type Result struct {
	Command  string
	Args     []string
	Dir      string
	Output   string // Combined stdout+stderr
	ExitCode int
	Duration time.Duration
}

// Runner invokes external commands with a fixed working directory and
// environment overlay. A zero Runner runs in the process working directory.
type Runner struct {
	Dir string   // Working directory for every invocation
	Env []string // Extra KEY=VALUE entries appended to the process env
}

// New creates a runner rooted at dir.
func New(dir string) *Runner {
	return &Runner{Dir: dir}
}

// WithEnv returns a copy of the runner with extra environment entries.
func (r *Runner) WithEnv(env ...string) *Runner {
	clone := *r
	clone.Env = append(append([]string{}, r.Env...), env...)
	return &clone
}

// Run executes the command, capturing combined output. The returned Result is
// valid even when err is non-nil so callers can surface tool output verbatim.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("tool %q not found on PATH: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	slog.Debug("Running command",
		logfields.Name(name),
		slog.String("args", strings.Join(args, " ")),
		logfields.Path(r.Dir))

	start := time.Now()
	runErr := cmd.Run()
	result := &Result{
		Command:  name,
		Args:     args,
		Dir:      r.Dir,
		Output:   buf.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		return result, fmt.Errorf("%s exited with code %d: %w", name, result.ExitCode, runErr)
	}
	return result, nil
}

// RunLine splits a shell-free command line on whitespace and executes it.
// Used for configured dependency-install commands like "pip install -e .".
func (r *Runner) RunLine(ctx context.Context, line string) (*Result, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	return r.Run(ctx, fields[0], fields[1:]...)
}
