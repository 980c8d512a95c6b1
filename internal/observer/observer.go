package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/logger"
)

// Observer turns raw notifications into a filtered, ordered event stream.
// It keeps no history: every raw event is translated, filtered and either
// forwarded or dropped.
type Observer struct {
	subscriber Subscriber
	opts       Options
	filter     *Filter
	logger     logger.Logger

	mu      sync.Mutex
	root    string
	sub     Subscription
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool

	overflows atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an Observer. It fails only when an exclude pattern does not compile.
func New(subscriber Subscriber, opts Options, log logger.Logger) (*Observer, error) {
	opts = opts.withDefaults()
	if log == nil {
		log = logger.Nop()
	}

	filter, err := NewFilter(opts.MetadataDir, opts.Exclude)
	if err != nil {
		return nil, err
	}

	return &Observer{
		subscriber: subscriber,
		opts:       opts,
		filter:     filter,
		logger:     log,
		done:       make(chan struct{}),
	}, nil
}

// Filter returns the compiled path filter, so a Subscriber can share it.
func (o *Observer) Filter() *Filter {
	return o.filter
}

// Start begins monitoring root recursively and returns the filtered stream.
// The stream is closed when the subscription ends, ctx is done or Close is
// called. Any failure to install the watch is an *errors.ObserverError.
func (o *Observer) Start(ctx context.Context, root string) (<-chan Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started || o.closed {
		return nil, gitwatchErrors.NewObserverError(root, gitwatchErrors.New("observer already started"))
	}

	resolved, err := resolveRoot(root)
	if err != nil {
		return nil, gitwatchErrors.NewObserverError(root, err)
	}

	sub, err := o.subscriber.Subscribe(resolved)
	if err != nil {
		return nil, gitwatchErrors.NewObserverError(resolved, err)
	}

	o.root = resolved
	o.sub = sub
	o.started = true

	out := make(chan Event, o.opts.Buffer)
	o.wg.Add(1)
	go o.deliver(ctx, sub, out)

	o.logger.Info("Watching %s (metadata dir %q, %d exclude patterns)", resolved, o.opts.MetadataDir, len(o.opts.Exclude))
	return out, nil
}

// Root returns the resolved watched root, empty before Start.
func (o *Observer) Root() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.root
}

// Overflows returns how many times the platform queue overflowed.
func (o *Observer) Overflows() uint64 { return o.overflows.Load() }

// Delivered returns how many events reached the output stream.
func (o *Observer) Delivered() uint64 { return o.delivered.Load() }

// Dropped returns how many events the filter rejected.
func (o *Observer) Dropped() uint64 { return o.dropped.Load() }

// Close releases the subscription. It is safe to call more than once.
func (o *Observer) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.done)
	sub := o.sub
	o.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	o.wg.Wait()
	return err
}

func (o *Observer) deliver(ctx context.Context, sub Subscription, out chan<- Event) {
	defer o.wg.Done()
	defer close(out)

	events := sub.Events()
	errs := sub.Errors()

	for {
		select {
		case raw, ok := <-events:
			if !ok {
				return
			}
			event, keep := o.translate(raw)
			if !keep {
				o.dropped.Add(1)
				continue
			}
			if !o.send(ctx, out, event) {
				return
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if !o.handleError(ctx, out, err) {
				return
			}

		case <-ctx.Done():
			return
		case <-o.done:
			return
		}
	}
}

// send blocks until the consumer takes event; false means shutdown.
func (o *Observer) send(ctx context.Context, out chan<- Event, event Event) bool {
	select {
	case out <- event:
		o.delivered.Add(1)
		return true
	case <-ctx.Done():
		return false
	case <-o.done:
		return false
	}
}

func (o *Observer) handleError(ctx context.Context, out chan<- Event, err error) bool {
	if !gitwatchErrors.Is(err, gitwatchErrors.ErrObserverOverflow) {
		o.logger.Warning("Change notification error: %v", err)
		return true
	}

	o.overflows.Add(1)
	o.logger.WarningToUser("%v; consider a longer debounce interval", err)

	// Lost notifications may hide real changes; ask for a re-check of the whole tree.
	return o.send(ctx, out, Event{Path: ".", Kind: Modified, Time: o.opts.Clock.Now()})
}

func (o *Observer) translate(raw RawEvent) (Event, bool) {
	rel, err := filepath.Rel(o.root, raw.Path)
	if err != nil {
		return Event{}, false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Event{}, false
	}
	rel = filepath.ToSlash(rel)
	if o.filter.Ignored(rel) {
		return Event{}, false
	}
	return Event{Path: rel, Kind: raw.Kind, Time: o.opts.Clock.Now()}, true
}

// resolveRoot returns the absolute, symlink-free form of root and checks it is a directory.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", gitwatchErrors.Errorf("%s is not a directory", resolved)
	}
	return resolved, nil
}

// NewFS creates an Observer backed by fsnotify that shares its filter with
// the subscriber, so excluded directories are never watched at all.
func NewFS(opts Options, log logger.Logger) (*Observer, error) {
	o, err := New(nil, opts, log)
	if err != nil {
		return nil, err
	}
	o.subscriber = NewFSNotifySubscriber(o.filter, o.logger)
	return o, nil
}
