package pipeline

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/bashhack/gitwatch/internal/coordinator"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/git"
	"github.com/bashhack/gitwatch/internal/logger"
	"github.com/bashhack/gitwatch/internal/observer"
)

// Config describes what to watch and how to commit.
type Config struct {
	// Root is the working copy to watch; it must be a git repository.
	Root string

	Observer    observer.Options
	Coordinator coordinator.Options
}

// Deps are the pipeline's collaborators. Nil fields get production
// implementations: fsnotify, the git CLI and the wall clock.
type Deps struct {
	Subscriber observer.Subscriber
	Gateway    coordinator.Gateway
	Clock      clock.Clock
	Logger     logger.Logger
}

// Stats combines the observer's and the coordinator's counters.
type Stats struct {
	coordinator.Stats

	Events    uint64
	Filtered  uint64
	Overflows uint64
}

// Pipeline connects a change observer to a commit coordinator through a
// bounded channel.
type Pipeline struct {
	root     string
	observer *observer.Observer
	coord    *coordinator.Coordinator
	logger   logger.Logger

	mu      sync.Mutex
	started bool
}

// New assembles a pipeline. Configuration problems are reported here, before
// anything is watched.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.Root == "" {
		return nil, gitwatchErrors.NewConfigError("root", cfg.Root, gitwatchErrors.New("must not be empty"))
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Gateway == nil {
		deps.Gateway = git.NewGateway(cfg.Root)
	}

	obsOpts := cfg.Observer
	obsOpts.Clock = deps.Clock
	var (
		obs *observer.Observer
		err error
	)
	if deps.Subscriber != nil {
		obs, err = observer.New(deps.Subscriber, obsOpts, deps.Logger)
	} else {
		obs, err = observer.NewFS(obsOpts, deps.Logger)
	}
	if err != nil {
		return nil, err
	}

	coordOpts := cfg.Coordinator
	coordOpts.Clock = deps.Clock
	coord, err := coordinator.New(deps.Gateway, coordOpts, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		root:     cfg.Root,
		observer: obs,
		coord:    coord,
		logger:   deps.Logger,
	}, nil
}

// Run watches the root and commits changes until ctx is cancelled. A root
// that cannot be watched is fatal and returned immediately as an
// ErrObserverInit error. Cancellation is a clean shutdown: an in-flight
// commit finishes and Run returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return gitwatchErrors.New("pipeline already started")
	}
	p.started = true
	p.mu.Unlock()

	events, err := p.observer.Start(ctx, p.root)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.observer.Close(); cerr != nil {
			p.logger.Warning("Failed to close change observer: %v", cerr)
		}
	}()

	p.logger.InfoToUser("Watching %s for changes", p.observer.Root())

	err = p.coord.Run(ctx, events)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	// The stream closed on its own: the watch is gone.
	return gitwatchErrors.NewObserverError(p.observer.Root(), gitwatchErrors.New("change notifications stopped"))
}

// Stats returns a snapshot of the pipeline's counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Stats:     p.coord.Stats(),
		Events:    p.observer.Delivered(),
		Filtered:  p.observer.Dropped(),
		Overflows: p.observer.Overflows(),
	}
}
