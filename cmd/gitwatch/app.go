package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bashhack/gitwatch/internal/config"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/git"
	"github.com/bashhack/gitwatch/internal/lock"
	"github.com/bashhack/gitwatch/internal/logger"
	"github.com/bashhack/gitwatch/internal/pipeline"
)

// Runner is a started watch-and-commit session.
type Runner interface {
	Run(ctx context.Context) error
	Stats() pipeline.Stats
}

// Locker manages file locking
type Locker interface {
	Acquire() error
	Release() error
}

// PipelineFactory builds the session for a finalized configuration.
type PipelineFactory func(cfg pipeline.Config, deps pipeline.Deps) (Runner, error)

// AppOptions contains app configuration and dependencies.
// Nil optional fields are replaced with production defaults.
type AppOptions struct {
	// Config holds the application configuration settings (required).
	Config *config.Config

	// Logger provides logging (optional, created from Config if nil).
	Logger logger.Logger

	// Locker prevents two instances on one repository (optional).
	Locker Locker

	// NewPipeline builds the session (optional, defaults to pipeline.New).
	NewPipeline PipelineFactory

	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// Exit terminates the process (optional, defaults to os.Exit).
	Exit func(code int)

	// ExecLookPath finds git in PATH (optional, defaults to exec.LookPath).
	ExecLookPath func(file string) (string, error)

	// IsRepository checks the watched root (optional, defaults to git.IsRepository).
	IsRepository func(string) (bool, error)

	// HighestSequence finds the last checkpoint number when continuing
	// (optional, defaults to a query through git log).
	HighestSequence func(ctx context.Context, repoPath, prefix string) (int, error)
}

// App is the gitwatch application: it checks prerequisites, takes the
// repository lock and runs the pipeline until its context ends.
type App struct {
	Config *config.Config
	Logger logger.Logger
	Locker Locker
	Runner Runner

	Stdout io.Writer
	Stderr io.Writer

	newPipeline     PipelineFactory
	exit            func(code int)
	execLookPath    func(file string) (string, error)
	isRepository    func(string) (bool, error)
	highestSequence func(ctx context.Context, repoPath, prefix string) (int, error)

	// mu guards the session fields and Close against a forced stop from
	// the signal goroutine.
	mu        sync.Mutex
	startTime time.Time
}

// NewDefaultApp creates an App with standard dependencies.
func NewDefaultApp(versionInfo config.VersionInfo) *App {
	cfg := config.New()
	cfg.VersionInfo = versionInfo

	return NewApp(AppOptions{
		Config:       cfg,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Exit:         os.Exit,
		ExecLookPath: exec.LookPath,
		IsRepository: git.IsRepository,
	})
}

// NewApp creates an App from opts. It panics if opts.Config is nil.
func NewApp(opts AppOptions) *App {
	if opts.Config == nil {
		panic("Config is required in AppOptions")
	}

	app := &App{
		Config:          opts.Config,
		Logger:          opts.Logger,
		Locker:          opts.Locker,
		Stdout:          opts.Stdout,
		Stderr:          opts.Stderr,
		newPipeline:     opts.NewPipeline,
		exit:            opts.Exit,
		execLookPath:    opts.ExecLookPath,
		isRepository:    opts.IsRepository,
		highestSequence: opts.HighestSequence,
	}

	if app.Stdout == nil {
		app.Stdout = os.Stdout
	}
	if app.Stderr == nil {
		app.Stderr = os.Stderr
	}
	if app.exit == nil {
		app.exit = os.Exit
	}
	if app.execLookPath == nil {
		app.execLookPath = exec.LookPath
	}
	if app.isRepository == nil {
		app.isRepository = git.IsRepository
	}
	if app.highestSequence == nil {
		app.highestSequence = func(ctx context.Context, repoPath, prefix string) (int, error) {
			return git.NewGateway(repoPath).HighestSequence(ctx, prefix)
		}
	}
	if app.newPipeline == nil {
		app.newPipeline = func(cfg pipeline.Config, deps pipeline.Deps) (Runner, error) {
			return pipeline.New(cfg, deps)
		}
	}

	return app
}

// Initialize finalizes the configuration and creates the logger and locker
// when they were not injected.
func (a *App) Initialize() error {
	if err := a.Config.Finalize(); err != nil {
		if gitwatchErrors.Is(err, gitwatchErrors.ErrInvalidConfiguration) {
			return err
		}
		return gitwatchErrors.Wrap(gitwatchErrors.ErrInvalidConfiguration, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Logger == nil {
		a.Logger = logger.NewWithOutput(a.Config.Debug, a.Config.LogFile, a.Config.Verbose, a.Stdout, a.Stderr)
	}

	if a.Locker == nil {
		locker, err := lock.New(a.Config.RepoPath)
		if err != nil {
			return gitwatchErrors.Wrap(err, "failed to initialize lock")
		}
		a.Locker = locker
	}

	return nil
}

// Run executes one gitwatch session. It returns nil after an orderly
// shutdown and a fatal error otherwise.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(); err != nil {
		return err
	}

	defer func() {
		if err := a.Close(); err != nil {
			_, _ = fmt.Fprintf(a.Stderr, "❌ Error during cleanup: %v\n", err)
		}
	}()

	if err := a.checkRequiredCommands(); err != nil {
		_, _ = fmt.Fprintf(a.Stderr, "❌ Error: %v. Please install it and try again.\n", err)
		return err
	}

	isRepo, err := a.isRepository(a.Config.RepoPath)
	if err != nil {
		a.Logger.Warning("Failed to check if path is a git repository: %v", err)
		return gitwatchErrors.Wrap(gitwatchErrors.ErrGatewayUnavailable, err.Error())
	}
	if !isRepo {
		return gitwatchErrors.Wrap(gitwatchErrors.ErrNotGitRepository, a.Config.RepoPath)
	}
	a.Logger.Info("Git repository verified")

	if err := a.Locker.Acquire(); err != nil {
		if gitwatchErrors.Is(err, gitwatchErrors.ErrAlreadyRunning) || gitwatchErrors.Is(err, gitwatchErrors.ErrLockAcquisitionFailure) {
			return err
		}
		return gitwatchErrors.Wrap(gitwatchErrors.ErrLockAcquisitionFailure, err.Error())
	}
	if stale, ok := a.Locker.(interface{ StalePID() int }); ok && stale.StalePID() != 0 {
		a.Logger.Warning("Recovered stale lock left by PID %d", stale.StalePID())
	}

	start := 0
	if a.Config.ContinueSession {
		start, err = a.highestSequence(ctx, a.Config.RepoPath, a.Config.CommitPrefix)
		if err != nil {
			return gitwatchErrors.Wrap(err, "failed to find the last checkpoint number")
		}
		a.Logger.InfoToUser("Continuing from checkpoint #%d", start)
	}

	runner, err := a.newPipeline(a.Config.Pipeline(start), pipeline.Deps{Logger: a.Logger})
	if err != nil {
		return err
	}
	a.printBanner()

	a.mu.Lock()
	a.Runner = runner
	a.startTime = time.Now()
	a.mu.Unlock()

	err = runner.Run(ctx)
	a.PrintSummary()
	return err
}

func (a *App) printBanner() {
	a.Logger.InfoToUser("gitwatch %s watching %s", a.Config.VersionInfo.Version, a.Config.RepoPath)
	a.Logger.InfoToUser("Committing after %s of quiet (prefix %q)", a.Config.Debounce, a.Config.CommitPrefix)
	if a.Config.Debug {
		a.Logger.InfoToUser("Debug log: %s", a.Config.LogFile)
	}
	a.Logger.InfoToUser("Press Ctrl+C to stop")
}

// VersionString is the text printed by --version.
func (a *App) VersionString() string {
	return fmt.Sprintf("%s (%s) built on %s",
		a.Config.VersionInfo.Version,
		a.Config.VersionInfo.Commit,
		a.Config.VersionInfo.Date)
}

// PrintSummary reports what the session did. It prints nothing before the
// pipeline has started.
func (a *App) PrintSummary() {
	a.mu.Lock()
	runner, startTime := a.Runner, a.startTime
	a.mu.Unlock()

	if runner == nil || a.Logger == nil {
		return
	}
	stats := runner.Stats()

	duration := time.Since(startTime)
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	a.Logger.StatusMessage("")
	a.Logger.StatusMessage("---------------------------------------------")
	a.Logger.StatusMessage("📊 gitwatch Session Summary")
	a.Logger.StatusMessage("---------------------------------------------")
	a.Logger.StatusMessage("✅ Commits made: %d", stats.Commits)
	a.Logger.StatusMessage("💤 Settles with nothing to commit: %d", stats.NoOps)
	if stats.Failures > 0 {
		a.Logger.StatusMessage("⚠️  Failed commit attempts: %d", stats.Failures)
	}
	a.Logger.StatusMessage("👀 Changes observed: %d", stats.Events)
	if stats.Overflows > 0 {
		a.Logger.StatusMessage("🌊 Notification overflows: %d", stats.Overflows)
	}
	if !stats.LastCommit.IsZero() {
		a.Logger.StatusMessage("🕒 Last commit: %s", stats.LastCommit.Format("2006-01-02 15:04:05"))
	}
	a.Logger.StatusMessage("⏱️  Session duration: %dh %dm %ds", hours, minutes, seconds)
	a.Logger.StatusMessage("---------------------------------------------")
	a.Logger.StatusMessage("🛑 gitwatch stopped at %s", time.Now().Format("2006-01-02 15:04:05"))
}

// checkRequiredCommands verifies git is available in PATH
func (a *App) checkRequiredCommands() error {
	if _, err := a.execLookPath("git"); err != nil {
		return gitwatchErrors.Wrap(gitwatchErrors.ErrGatewayUnavailable, "git is not found in PATH")
	}
	return nil
}

// Close releases the lock and closes the logger. It is safe to call more
// than once.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	if a.Locker != nil {
		if err := a.Locker.Release(); err != nil {
			if a.Logger != nil {
				a.Logger.Error("Failed to release lock during cleanup: %v", err)
			} else {
				_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to release lock during cleanup: %v\n", err)
			}
			errs = append(errs, err)
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to close logger: %v\n", err)
			errs = append(errs, err)
		}
	}

	return gitwatchErrors.Join(errs...)
}

// CleanupOnSignal releases resources and prints the summary when the
// process is forced to stop.
func (a *App) CleanupOnSignal() {
	a.PrintSummary()
	if err := a.Close(); err != nil {
		_, _ = fmt.Fprintf(a.Stderr, "❌ Error during cleanup: %v\n", err)
	}
}
