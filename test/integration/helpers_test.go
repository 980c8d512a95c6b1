//go:build integration

package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
)

func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("GITWATCH_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test; set GITWATCH_INTEGRATION_TESTS=1 to run")
	}
}

// buildGitwatch compiles the binary once per test run.
func buildGitwatch(t *testing.T) string {
	t.Helper()

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "gitwatch-bin-*")
		if err != nil {
			buildErr = err
			return
		}
		binPath = filepath.Join(dir, "gitwatch")
		out, err := exec.Command("go", "build", "-o", binPath, "../../cmd/gitwatch").CombinedOutput()
		if err != nil {
			buildErr = err
			t.Logf("go build output:\n%s", out)
		}
	})
	if buildErr != nil {
		t.Fatalf("Failed to build gitwatch binary: %v", buildErr)
	}
	return binPath
}

func setupTestRepo(t *testing.T) string {
	t.Helper()

	repoPath, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}

	git(t, repoPath, "init")
	git(t, repoPath, "config", "user.email", "test@example.com")
	git(t, repoPath, "config", "user.name", "Test User")
	git(t, repoPath, "config", "commit.gpgsign", "false")

	if err := os.WriteFile(filepath.Join(repoPath, "initial.txt"), []byte("Initial content"), 0o644); err != nil {
		t.Fatalf("Failed to create initial file: %v", err)
	}
	git(t, repoPath, "add", "initial.txt")
	git(t, repoPath, "commit", "-m", "Initial commit")

	return repoPath
}

func git(t *testing.T, repoPath string, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", repoPath}, args...)...).CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func commitCount(t *testing.T, repoPath string) int {
	t.Helper()
	n, err := strconv.Atoi(git(t, repoPath, "rev-list", "--count", "HEAD"))
	if err != nil {
		t.Fatalf("Failed to count commits: %v", err)
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// syncBuffer is a bytes.Buffer safe for use as a child's stdout.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startGitwatch runs the binary against repoPath and waits until it reports
// that it is watching.
func startGitwatch(t *testing.T, repoPath string, args ...string) (*exec.Cmd, *syncBuffer) {
	t.Helper()

	cmd := exec.Command(buildGitwatch(t), append([]string{"--repo", repoPath}, args...)...)
	out := &syncBuffer{}
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start gitwatch: %v", err)
	}
	t.Cleanup(func() {
		if cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	})

	waitFor(t, 10*time.Second, "gitwatch to start", func() bool {
		return strings.Contains(out.String(), "Watching "+repoPath)
	})
	return cmd, out
}
