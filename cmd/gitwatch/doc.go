// Package main implements gitwatch, a daemon that commits every settled
// change in a git working copy.
//
// gitwatch subscribes to filesystem notifications for the repository,
// waits until the tree has been quiet for the debounce interval and then
// stages and commits everything as one numbered checkpoint:
//
//	[gitwatch] Automatic checkpoint #12 - 2025-03-14 09:26:53
//
// Unlike interval-based tools it never polls, never creates empty commits
// and turns a burst of saves into a single commit.
//
// # Basic Usage
//
//	gitwatch                         # Watch the current directory
//	gitwatch --repo ~/notes          # Watch another repository
//	gitwatch --debounce 10s          # Wait for 10s of quiet before committing
//	gitwatch --exclude '*.swp'       # Ignore matching paths (repeatable)
//	gitwatch --continue              # Continue numbering from the last checkpoint
//	gitwatch --commit-on-start       # Commit changes made while not running
//
// # Configuration
//
// Every flag has an environment variable (GITWATCH_DEBOUNCE,
// GITWATCH_EXCLUDE as a comma-separated list, and so on) and a key in
// .gitwatch.toml at the repository root:
//
//	debounce = "5s"
//	max_backoff = "2m"
//	exclude = ["*.swp", "node_modules", "build/**"]
//	commit_prefix = "[notes]"
//
// Flags override the environment, which overrides the file.
//
// # Failures
//
// A failed git command never stops gitwatch. Pending changes are kept and
// the commit is retried after min-backoff, doubling up to max-backoff; the
// delay resets after the next success. A missing git binary, a path that
// is not a repository, a root that cannot be watched or a second instance
// on the same repository are fatal and exit with status 1.
//
// # Signals
//
// SIGINT, SIGTERM and SIGHUP stop gitwatch after any in-flight commit has
// finished and print a session summary. A second signal exits immediately.
package main
