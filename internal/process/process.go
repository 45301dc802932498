// Package process runs external tools with a bounded wait and captured
// output streams.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
)

// DefaultTimeout bounds a single invocation.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner starts a process in dir and waits for it.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// Exec runs processes through os/exec.
type Exec struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewExec creates an Exec runner. A zero timeout means DefaultTimeout.
func NewExec(timeout time.Duration, logger *slog.Logger) *Exec {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exec{Timeout: timeout, Logger: logger}
}

// Run executes name with args. A non-zero exit yields an EXTERNAL_TOOL error
// with stderr as its details; on timeout the process is killed and the call
// fails.
func (e *Exec) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	command := Command(name, args...)
	if e.Logger != nil {
		e.Logger.Debug("exec", "command", command, "dir", dir)
	}
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, yerrors.Tool(command, -1, res.Stderr, fmt.Errorf("timed out after %s", timeout))
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, yerrors.Tool(command, res.ExitCode, strings.TrimRight(res.Stderr, "\n"), nil)
		}
		return res, yerrors.Tool(command, -1, res.Stderr, err)
	}
}

// Command renders a command line for messages, with the last argument of an
// auth token assignment masked.
func Command(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for i, a := range args {
		if i > 0 && strings.HasSuffix(args[i-1], ":_authToken") {
			a = "***"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Lines splits output into non-empty trimmed lines.
func Lines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
