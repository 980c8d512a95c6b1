package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/git"
	"github.com/bashhack/gitwatch/internal/logger"
	"github.com/bashhack/gitwatch/internal/observer"
)

// State is the coordinator's position in its commit cycle.
type State int

const (
	// Idle means no uncommitted changes are known.
	Idle State = iota
	// Accumulating means changes arrived and the quiet period is running.
	Accumulating
	// Committing means an attempt is in flight.
	Committing
	// Backoff means the last attempt failed and a retry is scheduled.
	Backoff
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Committing:
		return "committing"
	case Backoff:
		return "backoff"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Gateway is the subset of version-control operations the coordinator needs.
// *git.Gateway satisfies it.
type Gateway interface {
	IsDirty(ctx context.Context) (bool, error)
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) (git.Outcome, error)
}

// Attempt describes one completed commit attempt.
type Attempt struct {
	Number    int
	Message   string
	StartedAt time.Time
	Outcome   git.Outcome
	Err       error

	// RetryIn is the backoff delay scheduled after a failed attempt.
	RetryIn time.Duration
}

// Stats summarises a coordinator's activity.
type Stats struct {
	Commits    int
	NoOps      int
	Failures   int
	LastCommit time.Time
}

type attemptResult struct {
	message   string
	startedAt time.Time
	outcome   git.Outcome
	err       error
}

// batch tracks whether changes are pending and when the most recent one
// arrived. lastEvent never moves backwards.
type batch struct {
	pending   bool
	lastEvent time.Time
}

func (b *batch) record(t time.Time) {
	if !b.pending || t.After(b.lastEvent) {
		b.lastEvent = t
	}
	b.pending = true
}

// Coordinator turns a stream of change events into commits. It waits for the
// event stream to go quiet for the debounce interval, then stages and commits
// everything, retrying with exponential backoff when git fails.
type Coordinator struct {
	gateway Gateway
	opts    Options
	clock   clock.Clock
	logger  logger.Logger
	backoff *backoff.ExponentialBackOff
	limiter *rate.Limiter

	// Owned by the Run goroutine.
	state         State
	batch         batch
	retryAt       time.Time
	throttleUntil time.Time
	redirtied     bool
	sequence      int
	attempts      int

	mu      sync.Mutex
	stats   Stats
	running bool
}

// New creates a Coordinator committing through gw.
func New(gw Gateway, opts Options, log logger.Logger) (*Coordinator, error) {
	if gw == nil {
		return nil, gitwatchErrors.New("coordinator requires a gateway")
	}
	if log == nil {
		log = logger.Nop()
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.MinBackoff
	b.MaxInterval = opts.MaxBackoff
	b.Multiplier = opts.BackoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Clock = opts.Clock
	b.Reset()

	c := &Coordinator{
		gateway:  gw,
		opts:     opts,
		clock:    opts.Clock,
		logger:   log,
		backoff:  b,
		sequence: opts.StartSequence,
	}
	if opts.MinCommitInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.MinCommitInterval), 1)
	}
	return c, nil
}

// Stats returns a snapshot of the coordinator's counters. Safe to call
// concurrently with Run.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run consumes events until the channel is closed or ctx is cancelled. An
// attempt already in flight is allowed to finish before Run returns; pending
// changes that have not reached an attempt are left in the working tree.
// Run returns nil when events is closed and ctx.Err() on cancellation.
func (c *Coordinator) Run(ctx context.Context, events <-chan observer.Event) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return gitwatchErrors.New("coordinator is already running")
	}
	c.running = true
	c.mu.Unlock()

	if c.opts.CommitOnStart {
		c.batch.record(c.clock.Now())
		c.transition(Accumulating)
	}

	var done chan attemptResult
	for {
		var timer *clock.Timer
		var fire <-chan time.Time
		if deadline, ok := c.deadline(); ok && done == nil {
			wait := deadline.Sub(c.clock.Now())
			if wait < 0 {
				wait = 0
			}
			timer = c.clock.Timer(wait)
			fire = timer.C
		}

		if events == nil && done == nil {
			if timer != nil {
				timer.Stop()
			}
			c.abandon()
			return nil
		}

		if c.opts.Hooks.OnIdle != nil {
			c.opts.Hooks.OnIdle(c.state)
		}

		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}
			c.onEvent(ev)

		case <-fire:
			if c.throttled() {
				break
			}
			done = c.startAttempt(ctx)

		case res := <-done:
			done = nil
			c.finishAttempt(res)

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if done != nil {
				c.logger.InfoToUser("Waiting for in-flight commit to finish...")
				c.finishAttempt(<-done)
			}
			c.abandon()
			return ctx.Err()
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

func (c *Coordinator) onEvent(ev observer.Event) {
	t := ev.Time
	if t.IsZero() {
		t = c.clock.Now()
	}
	c.batch.record(t)
	c.logger.Info("Change observed: %s %s", ev.Kind, ev.Path)

	switch c.state {
	case Idle:
		c.transition(Accumulating)
	case Committing:
		c.redirtied = true
	}
}

// deadline reports when the loop should next act without a new event.
func (c *Coordinator) deadline() (time.Time, bool) {
	var at time.Time
	switch c.state {
	case Accumulating:
		at = c.batch.lastEvent.Add(c.opts.Debounce)
	case Backoff:
		at = c.batch.lastEvent.Add(c.opts.Debounce)
		if c.retryAt.After(at) {
			at = c.retryAt
		}
	default:
		return time.Time{}, false
	}
	if c.throttleUntil.After(at) {
		at = c.throttleUntil
	}
	return at, true
}

// throttled reserves a slot from the commit rate limiter, pushing the
// deadline out when none is available yet.
func (c *Coordinator) throttled() bool {
	now := c.clock.Now()
	if deadline, ok := c.deadline(); ok && now.Before(deadline) {
		return true
	}
	if c.limiter == nil {
		return false
	}
	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		c.throttleUntil = now.Add(delay)
		c.logger.Info("Commit rate limited, next attempt in %s", delay)
		return true
	}
	c.throttleUntil = time.Time{}
	return false
}

func (c *Coordinator) startAttempt(ctx context.Context) chan attemptResult {
	c.attempts++
	c.redirtied = false
	c.transition(Committing)

	started := c.clock.Now()
	message := fmt.Sprintf("%s #%d - %s", c.opts.CommitPrefix, c.sequence+1, started.Format("2006-01-02 15:04:05"))
	done := make(chan attemptResult, 1)

	// Gateway calls outlive cancellation so a commit is never cut short;
	// each one is still bounded by GatewayTimeout.
	base := context.WithoutCancel(ctx)
	go func() {
		outcome, err := c.attempt(base, message)
		done <- attemptResult{message: message, startedAt: started, outcome: outcome, err: err}
	}()
	return done
}

func (c *Coordinator) attempt(ctx context.Context, message string) (git.Outcome, error) {
	dirty, err := c.isDirty(ctx)
	if err != nil {
		return git.OutcomeFailed, err
	}
	if !dirty {
		return git.OutcomeNoOp, nil
	}
	if err := c.stageAll(ctx); err != nil {
		return git.OutcomeFailed, err
	}
	return c.commit(ctx, message)
}

func (c *Coordinator) isDirty(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.GatewayTimeout)
	defer cancel()
	dirty, err := c.gateway.IsDirty(ctx)
	return dirty, c.classify(ctx, err)
}

func (c *Coordinator) stageAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.GatewayTimeout)
	defer cancel()
	return c.classify(ctx, c.gateway.StageAll(ctx))
}

func (c *Coordinator) commit(ctx context.Context, message string) (git.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.GatewayTimeout)
	defer cancel()
	outcome, err := c.gateway.Commit(ctx, message)
	if err != nil {
		return git.OutcomeFailed, c.classify(ctx, err)
	}
	return outcome, nil
}

// classify makes sure a timed-out call carries ErrGatewayTimeout.
func (c *Coordinator) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded && !gitwatchErrors.Is(err, gitwatchErrors.ErrGatewayTimeout) {
		return fmt.Errorf("%w: %w", gitwatchErrors.ErrGatewayTimeout, err)
	}
	return err
}

func (c *Coordinator) finishAttempt(res attemptResult) {
	a := Attempt{
		Number:    c.attempts,
		Message:   res.message,
		StartedAt: res.startedAt,
		Outcome:   res.outcome,
		Err:       res.err,
	}

	if res.err != nil {
		delay := c.backoff.NextBackOff()
		c.retryAt = c.clock.Now().Add(delay)
		a.RetryIn = delay
		c.redirtied = false

		c.mu.Lock()
		c.stats.Failures++
		c.mu.Unlock()

		c.logger.WarningToUser("Commit attempt %d failed: %v (retrying in %s, changes kept)", a.Number, res.err, delay)
		c.transition(Backoff)
		c.notify(a)
		return
	}

	c.backoff.Reset()
	c.retryAt = time.Time{}

	c.mu.Lock()
	switch res.outcome {
	case git.OutcomeCommitted:
		c.sequence++
		c.stats.Commits++
		c.stats.LastCommit = res.startedAt
	default:
		c.stats.NoOps++
	}
	c.mu.Unlock()

	if res.outcome == git.OutcomeCommitted {
		c.logger.Success("Commit #%d created", c.sequence)
	} else {
		c.logger.Info("Working tree clean, nothing to commit")
	}

	if c.redirtied {
		c.redirtied = false
		c.transition(Accumulating)
	} else {
		c.batch = batch{}
		c.transition(Idle)
	}
	c.notify(a)
}

func (c *Coordinator) abandon() {
	if c.batch.pending && c.state != Idle {
		c.logger.WarningToUser("Stopping with uncommitted changes pending")
	}
}

func (c *Coordinator) transition(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Info("Coordinator %s -> %s", from, to)
	if c.opts.Hooks.OnTransition != nil {
		c.opts.Hooks.OnTransition(from, to)
	}
}

func (c *Coordinator) notify(a Attempt) {
	if c.opts.Hooks.OnAttempt != nil {
		c.opts.Hooks.OnAttempt(a)
	}
}
