package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/git"
	"github.com/bashhack/gitwatch/internal/observer"
)

// fakeGateway scripts git results and records what the coordinator asked for.
type fakeGateway struct {
	mu         sync.Mutex
	dirty      bool
	dirtyErrs  []error
	stageErrs  []error
	commitErrs []error
	hangDirty  int
	calls      []string
	messages   []string
	commitCtx  []error

	// When set, Commit signals entered and then waits for block to close.
	entered chan struct{}
	block   chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{dirty: true}
}

func gitFailure(op string) error {
	return gitwatchErrors.NewGitError(op, nil, fmt.Errorf("%w: exit status 1", gitwatchErrors.ErrGatewayFailed), "fatal: simulated")
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (g *fakeGateway) IsDirty(ctx context.Context) (bool, error) {
	g.mu.Lock()
	g.calls = append(g.calls, "status")
	hang := g.hangDirty > 0
	if hang {
		g.hangDirty--
	}
	err := pop(&g.dirtyErrs)
	dirty := g.dirty
	g.mu.Unlock()

	if hang {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return dirty, err
}

func (g *fakeGateway) StageAll(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "add")
	return pop(&g.stageErrs)
}

func (g *fakeGateway) Commit(ctx context.Context, message string) (git.Outcome, error) {
	g.mu.Lock()
	g.calls = append(g.calls, "commit")
	g.messages = append(g.messages, message)
	entered, block := g.entered, g.block
	g.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.commitCtx = append(g.commitCtx, ctx.Err())
	if err := pop(&g.commitErrs); err != nil {
		return git.OutcomeFailed, err
	}
	return git.OutcomeCommitted, nil
}

func (g *fakeGateway) setDirty(dirty bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dirty = dirty
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) count(call string) int {
	n := 0
	for _, c := range g.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) Messages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.messages...)
}

// recordingLogger keeps warnings and errors for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
	success  []string
}

func (l *recordingLogger) Info(string, ...any)          {}
func (l *recordingLogger) InfoToUser(string, ...any)    {}
func (l *recordingLogger) StatusMessage(string, ...any) {}
func (l *recordingLogger) Close() error                 { return nil }

func (l *recordingLogger) Warning(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) WarningToUser(format string, args ...any) {
	l.Warning(format, args...)
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Success(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.success = append(l.success, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnings...)
}

// harness runs a Coordinator against a mock clock. Tests step it by sending
// events, waiting for the loop to block in a given state and advancing time.
type harness struct {
	t        *testing.T
	mock     *clock.Mock
	start    time.Time
	gw       *fakeGateway
	log      *recordingLogger
	coord    *Coordinator
	events   chan observer.Event
	idle     chan State
	attempts chan Attempt
	cancel   context.CancelFunc
	result   chan error

	once sync.Once
	err  error
}

func newHarness(t *testing.T, opts Options, gw *fakeGateway) *harness {
	t.Helper()

	mock := clock.NewMock()
	h := &harness{
		t:        t,
		mock:     mock,
		start:    mock.Now(),
		gw:       gw,
		log:      &recordingLogger{},
		events:   make(chan observer.Event),
		idle:     make(chan State, 1024),
		attempts: make(chan Attempt, 64),
		result:   make(chan error, 1),
	}

	opts.Clock = mock
	opts.Hooks.OnIdle = func(s State) { h.idle <- s }
	opts.Hooks.OnAttempt = func(a Attempt) { h.attempts <- a }

	coord, err := New(gw, opts, h.log)
	require.NoError(t, err)
	h.coord = coord

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.result <- coord.Run(ctx, h.events) }()

	t.Cleanup(func() {
		h.cancel()
		_ = h.wait()
	})
	return h
}

// waitFor consumes idle notifications until the loop blocks in want.
func (h *harness) waitFor(want State) {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.idle:
			if s == want {
				return
			}
		case <-timeout:
			h.t.Fatalf("coordinator never went idle in state %s", want)
		}
	}
}

func (h *harness) send(path string) {
	h.t.Helper()
	select {
	case h.events <- observer.Event{Path: path, Kind: observer.Modified}:
	case <-time.After(2 * time.Second):
		h.t.Fatalf("coordinator did not accept event for %s", path)
	}
}

func (h *harness) nextAttempt() Attempt {
	h.t.Helper()
	select {
	case a := <-h.attempts:
		return a
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for a commit attempt")
		return Attempt{}
	}
}

func (h *harness) wait() error {
	h.once.Do(func() {
		select {
		case h.err = <-h.result:
		case <-time.After(2 * time.Second):
			h.t.Error("coordinator did not stop")
		}
	})
	return h.err
}
