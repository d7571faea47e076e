package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderr bounds how much of a failing command's stderr ends up in its error
const maxStderr = 512

// Runner defines the interface for running external commands
// This allows mocking exec.Command in tests
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner is the production implementation using os/exec
type ExecRunner struct{}

// Run executes a command and returns any error, including the tail of stderr
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrap(name, err, stderr.Bytes())
	}
	return nil
}

// Output executes a command and returns its stdout
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, wrap(name, err, stderr.Bytes())
	}
	return out, nil
}

func wrap(name string, err error, stderr []byte) error {
	msg := Tail(string(stderr), maxStderr)
	if msg == "" {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: %w: %s", name, err, msg)
}

// Tail trims s and keeps at most n trailing bytes of it
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Ensure ExecRunner implements Runner
var _ Runner = (*ExecRunner)(nil)
