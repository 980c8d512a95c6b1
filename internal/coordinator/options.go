package coordinator

import (
	"time"

	"github.com/benbjohnson/clock"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// Defaults applied to zero-valued Options fields.
const (
	// DefaultDebounce is the quiet period that settles a batch.
	DefaultDebounce = 2 * time.Second
	// DefaultMinBackoff is the delay before the first retry.
	DefaultMinBackoff = time.Second
	// DefaultMaxBackoff caps the retry delay.
	DefaultMaxBackoff = time.Minute
	// DefaultBackoffMultiplier grows the delay after each failure.
	DefaultBackoffMultiplier = 2.0
	// DefaultGatewayTimeout bounds each git invocation.
	DefaultGatewayTimeout = 30 * time.Second
	// DefaultCommitPrefix starts every checkpoint message.
	DefaultCommitPrefix = "[gitwatch] Automatic checkpoint"
)

// Options configures a Coordinator. Zero values fall back to the defaults
// above; negative durations are rejected.
type Options struct {
	// Debounce is the quiet period after the last change before committing.
	Debounce time.Duration

	// MinBackoff is the first retry delay after a failed attempt.
	MinBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the retry delay after each consecutive failure.
	BackoffMultiplier float64

	// MinCommitInterval is the minimum spacing between commit attempts.
	// Zero disables the limit.
	MinCommitInterval time.Duration

	// GatewayTimeout bounds each individual git invocation.
	GatewayTimeout time.Duration

	// CommitPrefix starts every commit message.
	CommitPrefix string

	// StartSequence is the number of the last commit of a previous session;
	// the next commit is numbered StartSequence+1.
	StartSequence int

	// CommitOnStart opens a batch immediately, so changes made while the
	// daemon was not running are committed after one debounce interval.
	CommitOnStart bool

	// Clock is the time source for debounce, backoff and rate limiting.
	Clock clock.Clock

	// Hooks receives observability callbacks from the loop goroutine.
	Hooks Hooks
}

func (o Options) withDefaults() Options {
	if o.Debounce == 0 {
		o.Debounce = DefaultDebounce
	}
	if o.MinBackoff == 0 {
		o.MinBackoff = DefaultMinBackoff
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = DefaultMaxBackoff
		if o.MaxBackoff < o.MinBackoff {
			o.MaxBackoff = o.MinBackoff
		}
	}
	if o.BackoffMultiplier == 0 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if o.GatewayTimeout == 0 {
		o.GatewayTimeout = DefaultGatewayTimeout
	}
	if o.CommitPrefix == "" {
		o.CommitPrefix = DefaultCommitPrefix
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.Debounce <= 0:
		return gitwatchErrors.NewConfigError("debounce", o.Debounce, gitwatchErrors.New("must be > 0"))
	case o.MinBackoff <= 0:
		return gitwatchErrors.NewConfigError("min-backoff", o.MinBackoff, gitwatchErrors.New("must be > 0"))
	case o.MaxBackoff < o.MinBackoff:
		return gitwatchErrors.NewConfigError("max-backoff", o.MaxBackoff, gitwatchErrors.Errorf("must be >= min-backoff (%s)", o.MinBackoff))
	case o.BackoffMultiplier < 1:
		return gitwatchErrors.NewConfigError("backoff-multiplier", o.BackoffMultiplier, gitwatchErrors.New("must be >= 1"))
	case o.MinCommitInterval < 0:
		return gitwatchErrors.NewConfigError("min-commit-interval", o.MinCommitInterval, gitwatchErrors.New("must not be negative"))
	case o.GatewayTimeout <= 0:
		return gitwatchErrors.NewConfigError("gateway-timeout", o.GatewayTimeout, gitwatchErrors.New("must be > 0"))
	case o.StartSequence < 0:
		return gitwatchErrors.NewConfigError("start-sequence", o.StartSequence, gitwatchErrors.New("must not be negative"))
	}
	return nil
}

// Hooks are optional callbacks, all invoked on the coordinator's loop goroutine.
type Hooks struct {
	// OnTransition is called on every state change.
	OnTransition func(from, to State)

	// OnAttempt is called when a commit attempt completes.
	OnAttempt func(Attempt)

	// OnIdle is called each time the loop is about to block, after its
	// debounce or retry timer has been armed.
	OnIdle func(State)
}
