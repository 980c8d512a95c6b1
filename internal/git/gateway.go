package git

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Outcome is the result of one commit attempt.
type Outcome int

const (
	// OutcomeCommitted means a new commit was recorded.
	OutcomeCommitted Outcome = iota + 1

	// OutcomeNoOp means there was nothing to commit.
	OutcomeNoOp

	// OutcomeFailed means the attempt failed; the error says why.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeNoOp:
		return "no-op"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Gateway drives the git executable for a single working copy. Each method
// is exactly one external process invocation; nonzero exit status and
// timeout are both reported as a *errors.GitError wrapping ErrGatewayFailed.
type Gateway struct {
	repoPath string
	executor CommandExecutor
}

// NewGateway creates a Gateway for repoPath using the real git executable.
func NewGateway(repoPath string) *Gateway {
	return NewGatewayWithExecutor(repoPath, NewExecExecutor())
}

// NewGatewayWithExecutor creates a Gateway with a custom executor
func NewGatewayWithExecutor(repoPath string, executor CommandExecutor) *Gateway {
	return &Gateway{
		repoPath: repoPath,
		executor: executor,
	}
}

// RepoPath returns the working copy this gateway operates on.
func (g *Gateway) RepoPath() string {
	return g.repoPath
}

// IsDirty reports whether the working copy has changes git would commit,
// including untracked files that are not ignored.
func (g *Gateway) IsDirty(ctx context.Context) (bool, error) {
	output, err := g.runGitCommandWithOutput(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// StageAll stages every change in the working copy, deletions included.
// Re-staging an already staged tree is a no-op.
func (g *Gateway) StageAll(ctx context.Context) error {
	return g.runGitCommand(ctx, "add", "--all")
}

// Commit records the staged changes with message. When git reports that
// there is nothing to commit the outcome is OutcomeNoOp and err is nil.
func (g *Gateway) Commit(ctx context.Context, message string) (Outcome, error) {
	output, err := g.runGitCommandWithOutput(ctx, "commit", "-m", message)
	if err == nil {
		return OutcomeCommitted, nil
	}

	if isNothingToCommit(output, err) {
		return OutcomeNoOp, nil
	}
	return OutcomeFailed, err
}

// HighestSequence parses git log to find the highest sequential commit
// number used with prefix. An empty history yields 0.
func (g *Gateway) HighestSequence(ctx context.Context, prefix string) (int, error) {
	output, err := g.runGitCommandWithOutput(ctx, "log", "--pretty=format:%s")
	if err != nil {
		var exitErr *exec.ExitError
		// A repository without commits makes git log exit 128
		if gitwatchErrors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
			return 0, nil
		}
		return 0, err
	}

	re := regexp.MustCompile(fmt.Sprintf("%s #([0-9]+)", regexp.QuoteMeta(prefix)))

	highest := 0
	for _, line := range strings.Split(output, "\n") {
		matches := re.FindStringSubmatch(line)
		if len(matches) > 1 {
			num, err := strconv.Atoi(matches[1])
			if err == nil && num > highest {
				highest = num
			}
		}
	}

	return highest, nil
}

// IsRepository checks if the given path is a git repository.
// If git exits with code 128 the path is not a repository and (false, nil)
// is returned. Other failures (git not found, permissions) return the error.
func IsRepository(path string) (bool, error) {
	executor := NewExecExecutor()
	err := executor.ExecuteWithContext(context.Background(), "git", "-C", path, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		// Exit code 128 is git's generic fatal error code; for rev-parse it
		// almost always means "not a work tree", and any other repository
		// problem is equally fatal for gitwatch.
		var exitErr *exec.ExitError
		if gitwatchErrors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNothingToCommit(output string, err error) bool {
	var exitErr *exec.ExitError
	if !gitwatchErrors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		return false
	}

	text := output
	var gitErr *gitwatchErrors.GitError
	if gitwatchErrors.As(err, &gitErr) {
		text += "\n" + gitErr.Output
	}
	return strings.Contains(text, "nothing to commit") ||
		strings.Contains(text, "nothing added to commit")
}

// runGitCommand executes a git command in the repository directory with context.
func (g *Gateway) runGitCommand(ctx context.Context, args ...string) error {
	allArgs := append([]string{"-C", g.repoPath}, args...)
	return g.executor.ExecuteWithContext(ctx, "git", allArgs...)
}

// runGitCommandWithOutput executes a git command and returns its output with context.
func (g *Gateway) runGitCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	allArgs := append([]string{"-C", g.repoPath}, args...)
	return g.executor.ExecuteWithContextAndOutput(ctx, "git", allArgs...)
}
