package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes external commands
type Runner interface {
	// Run executes a command, streaming its output to the command log
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a command and returns its stdout
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// LookPath reports the resolved path of an executable
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec. Combined output of Run is
// duplicated to the command log so a failed install can be diagnosed later.
type ExecRunner struct {
	logger *slog.Logger
	output io.Writer
}

// NewExecRunner creates a runner; output receives command stdout/stderr
// and may be nil to discard it
func NewExecRunner(logger *slog.Logger, output io.Writer) *ExecRunner {
	if output == nil {
		output = io.Discard
	}
	return &ExecRunner{logger: logger, output: output}
}

// Run executes name with args
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	r.logger.Debug("exec", "cmd", commandLine(name, args))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.output
	cmd.Stderr = r.output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return nil
}

// Output executes name with args and returns stdout. Stderr is folded into
// the returned error.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.logger.Debug("exec", "cmd", commandLine(name, args))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", commandLine(name, args), err, msg)
		}
		return out, fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return out, nil
}

// LookPath resolves an executable on PATH
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
