package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs an external media tool.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) error
	Output(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// ExecRunner shells out with os/exec and keeps the tail of stderr for errors
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, bin string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", bin, err, tail(stderr.String(), 500))
	}
	return nil
}

func (ExecRunner) Output(ctx context.Context, bin string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", bin, err, tail(stderr.String(), 500))
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
