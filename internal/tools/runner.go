// Package tools runs external executables with structured argument
// vectors. Arguments are never joined through a shell, so paths with
// spaces or metacharacters pass through untouched.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"dovimux/internal/domain"
	"dovimux/internal/log"
)

// Runner is the exec-backed domain.ToolRunner.
type Runner struct {
	logger zerolog.Logger
}

// NewRunner returns a Runner logging invocations under the "exec" component.
func NewRunner() *Runner {
	return &Runner{logger: log.WithComponent("exec")}
}

// Run executes bin and waits for it. A non-zero exit is escalated as
// domain.ErrExternalTool together with the tail of stderr.
func (r *Runner) Run(ctx context.Context, bin string, args ...string) error {
	r.logger.Debug().Str("bin", bin).Strs("args", args).Msg("run")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return toolError(bin, &stderr, err)
	}
	return nil
}

// Output executes bin and returns its stdout.
func (r *Runner) Output(ctx context.Context, bin string, args ...string) ([]byte, error) {
	r.logger.Debug().Str("bin", bin).Strs("args", args).Msg("run")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, toolError(bin, &stderr, err)
	}
	return stdout.Bytes(), nil
}

func toolError(bin string, stderr *bytes.Buffer, err error) error {
	detail := strings.TrimSpace(lastLines(stderr.String(), 3))

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if detail != "" {
			return fmt.Errorf("%s exited with %d: %s: %w", bin, exitErr.ExitCode(), detail, domain.ErrExternalTool)
		}
		return fmt.Errorf("%s exited with %d: %w", bin, exitErr.ExitCode(), domain.ErrExternalTool)
	}
	return fmt.Errorf("%s: %v: %w", bin, err, domain.ErrExternalTool)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
