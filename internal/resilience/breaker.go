// Package resilience guards calls to dependencies that may fail for a while,
// such as the loadout database, with a circuit breaker.
//
// A [Breaker] starts closed and forwards every call. After MaxFailures
// consecutive failures it opens and rejects calls with [ErrOpen] until the
// cooldown has passed. It then lets Probes calls through (half-open): if all
// of them succeed it closes again, any failure reopens it.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config tunes a [Breaker]. Zero fields take their defaults.
type Config struct {
	// Name labels log lines and errors.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close.
	// Default: 1.
	Probes int

	// IsFailure decides which errors count against the breaker. Default:
	// every non-nil error except context cancellation.
	IsFailure func(error) bool

	// OnStateChange is called with the breaker lock held and must not call
	// back into the breaker.
	OnStateChange func(name string, from, to State)
}

// Option configures a [Breaker].
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probing   int // half-open calls in flight
	succeeded int // successful half-open calls
}

// New returns a closed breaker.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	b := &Breaker{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Do runs fn unless the breaker is open. The error of fn is returned
// unchanged; a rejected call returns an error wrapping [ErrOpen].
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(probe, b.cfg.IsFailure(err))
	return err
}

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.probing, b.succeeded = 0, 0
		b.setState(StateHalfOpen)
	}
	switch b.state {
	case StateOpen:
		return false, fmt.Errorf("%w: %s", ErrOpen, b.cfg.Name)
	case StateHalfOpen:
		if b.probing+b.succeeded >= b.cfg.Probes {
			return false, fmt.Errorf("%w: %s (probing)", ErrOpen, b.cfg.Name)
		}
		b.probing++
		return true, nil
	}
	return false, nil
}

// record accounts for a finished call. Results of calls admitted under a
// state that has since changed are ignored.
func (b *Breaker) record(probe, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case probe && b.state == StateHalfOpen:
		b.probing--
		if failed {
			b.trip()
			return
		}
		b.succeeded++
		if b.succeeded >= b.cfg.Probes {
			b.failures = 0
			b.setState(StateClosed)
		}
	case !probe && b.state == StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	}
}

// trip opens the breaker. b.mu must be held.
func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.setState(StateOpen)
}

// setState switches state and reports the transition. b.mu must be held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	if to == StateOpen {
		slog.Warn("resilience: circuit opened",
			"name", b.cfg.Name,
			"consecutive_failures", b.failures,
			"cooldown", b.cfg.Cooldown,
		)
	} else {
		slog.Info("resilience: circuit state changed", "name", b.cfg.Name, "from", from, "to", to)
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.probing, b.succeeded = 0, 0, 0
	b.setState(StateClosed)
}
