package kernel

import (
	"sync"
	"time"

	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
)

// BreakerState is a circuit breaker's position in its lifecycle.
type BreakerState uint8

const (
	// BreakerClosed is the normal state: dispatches flow through.
	BreakerClosed BreakerState = iota
	// BreakerOpen fails every dispatch fast until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets exactly one trial dispatch through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerSnapshot is the externally visible breaker state.
type BreakerSnapshot struct {
	State               BreakerState `json:"-"`
	StateName           string       `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenedAt            time.Time    `json:"opened_at,omitzero"`
}

// breaker is the per-particle failure-isolation state machine. Allow is the
// admission-time check; RecordSuccess/RecordFailure are reported by the
// executor when the invocation completes.
//
// The half-open trial is claimed inside Allow so concurrent dispatches see
// at most one trial in flight. A claimed trial must be released with
// cancelTrial if the caller's enqueue fails, otherwise a rejected enqueue
// would burn the trial without ever invoking the particle.
type breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     BreakerClosed,
	}
}

// allow decides whether a dispatch may proceed. Returns ErrCircuitOpen when
// the breaker is open or a half-open trial is already in flight.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return errspkg.ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.trialInFlight = true
		return nil
	case BreakerHalfOpen:
		if b.trialInFlight {
			return errspkg.ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// cancelTrial releases a half-open trial claimed by allow when the
// dispatch could not be enqueued.
func (b *breaker) cancelTrial() {
	b.mu.Lock()
	if b.state == BreakerHalfOpen {
		b.trialInFlight = false
	}
	b.mu.Unlock()
}

// recordSuccess resets the failure count and closes the breaker.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	b.state = BreakerClosed
	b.failures = 0
	b.trialInFlight = false
	b.openedAt = time.Time{}
	b.mu.Unlock()
}

// recordFailure advances the state machine after a failed invocation: the
// consecutive count grows in closed state, opening at the threshold; a
// failed half-open trial reopens with a fresh openedAt.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.trialInFlight = false
	case BreakerOpen:
		// Late failure from an invocation admitted before the breaker
		// opened. The clock does not restart.
	}
}

// snapshot returns the externally visible breaker state.
func (b *breaker) snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		State:               b.state,
		StateName:           b.state.String(),
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}
