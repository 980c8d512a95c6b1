package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/bashhack/gitwatch/internal/errors"
)

// CommandExecutor defines an interface for executing commands
type CommandExecutor interface {
	// ExecuteWithContext runs a command and reports only its failure
	ExecuteWithContext(ctx context.Context, name string, args ...string) error

	// ExecuteWithContextAndOutput runs a command and returns its stdout
	ExecuteWithContextAndOutput(ctx context.Context, name string, args ...string) (string, error)
}

// ExecExecutor is the default implementation of CommandExecutor
// that delegates to the os/exec package
type ExecExecutor struct{}

// NewExecExecutor creates a new ExecExecutor
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{}
}

// ExecuteWithContext implements CommandExecutor.ExecuteWithContext
func (e *ExecExecutor) ExecuteWithContext(ctx context.Context, name string, args ...string) error {
	_, err := e.ExecuteWithContextAndOutput(ctx, name, args...)
	return err
}

// ExecuteWithContextAndOutput implements CommandExecutor.ExecuteWithContextAndOutput
func (e *ExecExecutor) ExecuteWithContextAndOutput(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), wrapExecError(ctx, name, args, err, stdout.String(), stderr.String())
	}
	return stdout.String(), nil
}

// wrapExecError turns a failed command into a GitError. A context deadline is
// reported as ErrGatewayTimeout; the *exec.ExitError stays reachable via As.
func wrapExecError(ctx context.Context, name string, args []string, err error, stdout, stderr string) error {
	operation := name
	if sub := subcommand(args); sub != "" {
		operation = sub
	}

	sentinel := errors.ErrGatewayFailed
	if ctx.Err() == context.DeadlineExceeded {
		sentinel = errors.ErrGatewayTimeout
	}

	output := strings.TrimSpace(stderr)
	if output == "" {
		output = strings.TrimSpace(stdout)
	}

	return errors.NewGitError(operation, args, errors.Errorf("%w: %w", sentinel, err), output)
}

// subcommand returns the git subcommand, skipping a leading "-C <path>".
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-C" {
			i++
			continue
		}
		if strings.HasPrefix(args[i], "-") {
			continue
		}
		return args[i]
	}
	return ""
}
