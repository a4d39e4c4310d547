package aws

import (
	"sync"
	"time"
)

// breakerState is the circuit breaker's three states: closed (calls
// pass through), open (calls fail fast), half-open (one trial call is
// allowed through to probe recovery).
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker guards critical AWS calls (create/terminate/modify).
// No breaker library appears anywhere in the retrieval pack, so this is
// a small stdlib state machine keyed by failure count and a recovery
// timer.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu          sync.Mutex
	state       breakerState
	failures    int
	openedAt    time.Time
}

func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{failureThreshold: failureThreshold, recoveryTimeout: recoveryTimeout}
}

// ErrCircuitOpen is returned by Call when the breaker is open and the
// recovery timeout hasn't elapsed.
type ErrCircuitOpen struct{}

func (ErrCircuitOpen) Error() string { return "circuit breaker open: critical operation suspended" }

// Call runs fn if the breaker permits it, recording the outcome.
func (b *CircuitBreaker) Call(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen{}
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) >= b.recoveryTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return false
	default:
		return true
	}
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.failures = 0
		b.state = breakerClosed
		return
	}
	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// State reports the breaker's current state, for health checks.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
