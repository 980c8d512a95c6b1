package lock

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Locker keeps a single gitwatch instance per watched root. The lock is an
// flock held on a PID file; the kernel drops it when the holder exits, so a
// crashed instance never blocks the next one.
type Locker struct {
	lockFile string
	file     *os.File
	pid      int
	stalePID int
}

// New creates a Locker for repoPath with its lock file in the system
// temporary directory.
func New(repoPath string) (*Locker, error) {
	return NewInDir(os.TempDir(), repoPath)
}

// NewInDir creates a Locker whose lock file lives in dir.
func NewInDir(dir, repoPath string) (*Locker, error) {
	if runtime.GOOS == "windows" {
		return nil, gitwatchErrors.NewLockError("", 0,
			gitwatchErrors.Wrap(gitwatchErrors.ErrLockAcquisitionFailure,
				"gitwatch only supports Unix-like operating systems"))
	}

	repoHash := fmt.Sprintf("%x", sha256.Sum256([]byte(repoPath)))[:16]
	return &Locker{
		lockFile: filepath.Join(dir, fmt.Sprintf("gitwatch-%s.lock", repoHash)),
		pid:      os.Getpid(),
	}, nil
}

// Path returns the lock file location.
func (l *Locker) Path() string {
	return l.lockFile
}

// StalePID returns the PID recorded by a previous holder that had exited
// without releasing the lock, or 0.
func (l *Locker) StalePID() int {
	return l.stalePID
}

// Acquire takes the lock or fails with ErrAlreadyRunning when a live
// process holds it.
func (l *Locker) Acquire() error {
	if l.file != nil {
		return nil
	}

	f, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return gitwatchErrors.NewLockError(l.lockFile, 0,
			gitwatchErrors.Wrapf(gitwatchErrors.ErrLockAcquisitionFailure, "cannot open lock file: %v", err))
	}

	if err := flock(f); err != nil {
		_ = f.Close()
		if !wouldBlock(err) {
			return gitwatchErrors.NewLockError(l.lockFile, 0,
				gitwatchErrors.Wrapf(gitwatchErrors.ErrLockAcquisitionFailure, "flock: %v", err))
		}
		return l.contended()
	}

	previous, _ := readPID(l.lockFile)
	if previous != 0 && previous != l.pid {
		l.stalePID = previous
	}

	l.file = f
	if err := l.writePID(); err != nil {
		_ = l.Release()
		return err
	}
	return nil
}

// contended handles a lock someone else holds. A holder that is no longer
// alive (the flock survives in an inherited descriptor) is treated as stale:
// the file is replaced and the lock taken on the new one.
func (l *Locker) contended() error {
	other, err := readPID(l.lockFile)
	if err != nil {
		return gitwatchErrors.NewLockError(l.lockFile, 0,
			gitwatchErrors.Wrap(gitwatchErrors.ErrAlreadyRunning, "lock holder unknown"))
	}
	if isProcessRunning(other) {
		return gitwatchErrors.NewLockError(l.lockFile, other, gitwatchErrors.ErrAlreadyRunning)
	}

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return gitwatchErrors.NewLockError(l.lockFile, other,
			gitwatchErrors.Wrapf(gitwatchErrors.ErrLockAcquisitionFailure, "cannot remove stale lock: %v", err))
	}

	f, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return gitwatchErrors.NewLockError(l.lockFile, other,
			gitwatchErrors.Wrapf(gitwatchErrors.ErrLockAcquisitionFailure, "lost race for stale lock: %v", err))
	}
	if err := flock(f); err != nil {
		_ = f.Close()
		return gitwatchErrors.NewLockError(l.lockFile, other,
			gitwatchErrors.Wrapf(gitwatchErrors.ErrLockAcquisitionFailure, "flock after stale recovery: %v", err))
	}

	l.stalePID = other
	l.file = f
	if err := l.writePID(); err != nil {
		_ = l.Release()
		return err
	}
	return nil
}

func (l *Locker) writePID() error {
	if err := l.file.Truncate(0); err != nil {
		return gitwatchErrors.NewLockError(l.lockFile, l.pid, gitwatchErrors.Wrap(err, "failed to truncate lock file"))
	}
	if _, err := l.file.WriteAt([]byte(strconv.Itoa(l.pid)), 0); err != nil {
		return gitwatchErrors.NewLockError(l.lockFile, l.pid, gitwatchErrors.Wrap(err, "failed to write PID to lock file"))
	}
	return nil
}

// Release drops the lock and removes the lock file. Safe to call when the
// lock is not held.
func (l *Locker) Release() error {
	if l.file == nil {
		return nil
	}

	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, gitwatchErrors.Wrap(err, "failed to unlock"))
	}
	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		errs = append(errs, gitwatchErrors.Wrap(err, "failed to remove lock file"))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, gitwatchErrors.Wrap(err, "failed to close lock file"))
	}
	l.file = nil

	if len(errs) > 0 {
		return gitwatchErrors.NewLockError(l.lockFile, l.pid, gitwatchErrors.Join(errs...))
	}
	return nil
}

func flock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

// wouldBlock checks both codes; older Unix systems distinguish them.
func wouldBlock(err error) bool {
	return gitwatchErrors.Is(err, syscall.EWOULDBLOCK) || gitwatchErrors.Is(err, syscall.EAGAIN)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	return strconv.Atoi(text)
}

// isProcessRunning checks if a process exists using signal 0
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || gitwatchErrors.Is(err, syscall.EPERM)
}
