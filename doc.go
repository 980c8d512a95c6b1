// Package gitwatch commits every settled change in a git working copy.
//
// gitwatch is a small daemon. It subscribes to filesystem notifications for
// a repository, waits until the tree has been quiet for a debounce interval
// and records everything that changed as one numbered checkpoint commit.
// When git fails it keeps the pending changes and retries with exponential
// backoff; when the tree turns out to be clean it commits nothing.
//
// # Quick Start
//
//	cd /path/to/your/repo
//	gitwatch
//
//	# Wait for 10 seconds of quiet and ignore editor swap files
//	gitwatch --debounce 10s --exclude '*.swp'
//
// # Architecture
//
// Three stages connected by a bounded channel:
//
//	fsnotify ─▶ observer ─▶ [chan Event] ─▶ coordinator ─▶ git gateway
//
// The stages are:
//
//   - internal/observer filters notifications (the .git directory and
//     exclude patterns) and forwards root-relative events in order.
//   - internal/coordinator runs the debounce and backoff state machine.
//   - internal/git invokes the git executable: status, add, commit.
//
// internal/pipeline wires them together; cmd/gitwatch adds configuration,
// the single-instance lock, signal handling and the session summary.
//
// # Installation
//
//	go install github.com/bashhack/gitwatch/cmd/gitwatch@latest
//
// gitwatch requires git in PATH and a Unix-like operating system.
package gitwatch
