// Package breaker guards an arbitrary fallible operation with a circuit
// breaker so a failing remote endpoint cannot accumulate hung connections.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected because the circuit is open.
// It is an expected control signal, not a failure of the guarded operation,
// and never counts toward the breaker's own failure tally.
var ErrOpen = errors.New("circuit breaker open")

// Breaker is a CLOSED/OPEN/HALF_OPEN state machine around consecutive
// failures. Safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state    State
	failures int
	openedAt time.Time
	trial    bool // a half-open trial call is in flight
}

// New returns a closed breaker that opens after threshold consecutive
// failures and permits a single trial call once cooldown has elapsed.
func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Do runs op unless the circuit is open. While open and inside the cool-down
// window it returns ErrOpen without invoking op. After the cool-down exactly
// one caller is admitted as the half-open trial; its outcome decides whether
// the circuit closes or re-opens.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trial = true
		return nil
	case StateHalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTrial := b.state == StateHalfOpen
	b.trial = false

	if err == nil {
		b.state = StateClosed
		b.failures = 0
		return
	}
	if wasTrial {
		b.state = StateOpen
		b.openedAt = b.now()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State returns the current state, accounting for an elapsed cool-down.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
