// Package lock ensures only one gitwatch instance watches a repository.
//
// The lock file lives in the system temporary directory and is named after
// a hash of the repository's absolute path:
//
//	/tmp/gitwatch-<repo-hash>.lock
//
// It holds the owner's PID under an exclusive flock. A second instance gets
// an error matching errors.ErrAlreadyRunning. A file left behind by a
// process that no longer exists is recovered silently; StalePID reports the
// previous owner so the caller can mention it.
//
// Locker is not safe for concurrent use by multiple goroutines.
package lock
