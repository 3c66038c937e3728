package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the circuit breaker state
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // Normal operation
	StateOpen     CircuitState = "open"      // Failures exceeded threshold
	StateHalfOpen CircuitState = "half_open" // Testing if recovered
)

// CircuitBreaker stops calling a dependency after repeated transient
// failures and lets a single probe through once the cooldown has passed.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	// OnStateChange, if set, is called with the new state outside the lock.
	OnStateChange func(from, to CircuitState)

	mu      sync.Mutex
	status  CircuitStatus
	probing bool
}

// CircuitStatus represents the current status of a circuit
type CircuitStatus struct {
	State         CircuitState
	FailureCount  int
	LastFailureAt time.Time
	OpenedAt      time.Time
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and stays open for cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		status:    CircuitStatus{State: StateClosed},
	}
}

// Status returns a snapshot of the circuit
func (cb *CircuitBreaker) Status() CircuitStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

// AllowRequest reports whether a call may proceed. In the half-open state
// only one probe is admitted at a time.
func (cb *CircuitBreaker) AllowRequest() error {
	cb.mu.Lock()
	var changed bool
	var from CircuitState

	switch cb.status.State {
	case StateOpen:
		if cb.now().Sub(cb.status.OpenedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		from, changed = cb.status.State, true
		cb.status.State = StateHalfOpen
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(from, StateHalfOpen)
	}
	return nil
}

// RecordSuccess closes the circuit and resets the failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.status.State
	cb.status = CircuitStatus{State: StateClosed, LastFailureAt: cb.status.LastFailureAt}
	cb.probing = false
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

// RecordFailure counts a failure and opens the circuit once the threshold
// is reached. A failed half-open probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	now := cb.now()
	from := cb.status.State
	cb.status.FailureCount++
	cb.status.LastFailureAt = now
	cb.probing = false

	opened := false
	if from == StateHalfOpen || (from == StateClosed && cb.status.FailureCount >= cb.threshold) {
		cb.status.State = StateOpen
		cb.status.OpenedAt = now
		opened = true
	}
	cb.mu.Unlock()

	if opened {
		cb.notify(from, StateOpen)
	}
}

// Execute runs fn when the circuit allows it. Only transient errors count
// as failures; other errors mean the dependency answered.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.AllowRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// The caller gave up; says nothing about the dependency.
		cb.release()
	case IsTransient(err):
		cb.RecordFailure()
	default:
		cb.RecordSuccess()
	}
	return err
}

// release frees a half-open probe slot without changing state
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
