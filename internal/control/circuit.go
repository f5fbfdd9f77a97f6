package control

import (
	"sync"
	"time"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker pauses polling after Threshold consecutive failures of the
// same error class. After Cooldown one probe is let through; its outcome
// either closes the breaker or opens it again.
type CircuitBreaker struct {
	Threshold int
	Cooldown  time.Duration

	mu       sync.Mutex
	state    CircuitState
	streaks  map[string]int
	since    time.Time
	tripping string
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{Threshold: threshold, Cooldown: cooldown}
	if cb.Threshold <= 0 {
		cb.Threshold = 5
	}
	if cb.Cooldown <= 0 {
		cb.Cooldown = 30 * time.Second
	}
	cb.reset()
	return cb
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OpenedClass is the error class that last tripped the breaker.
func (cb *CircuitBreaker) OpenedClass() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripping
}

// Gate returns how long the caller must still wait before polling at now.
// A zero wait means the call may proceed; probing is true when this call
// moved the breaker from open to half-open.
func (cb *CircuitBreaker) Gate(now time.Time) (wait time.Duration, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return 0, false
	}
	if left := cb.since.Add(cb.Cooldown).Sub(now); left > 0 {
		return left, false
	}
	cb.state = CircuitHalfOpen
	return 0, true
}

// RecordSuccess closes the breaker and reports whether it was not closed.
func (cb *CircuitBreaker) RecordSuccess() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	recovered := cb.state != CircuitClosed
	cb.reset()
	return recovered
}

// RecordFailure reports whether this failure opened the breaker. A failed
// half-open probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure(class string, now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if class == "" {
		class = "unknown"
	}
	switch cb.state {
	case CircuitOpen:
		return false
	case CircuitClosed:
		cb.streaks[class]++
		if cb.streaks[class] < cb.Threshold {
			return false
		}
	}
	cb.state, cb.since, cb.tripping = CircuitOpen, now, class
	return true
}

func (cb *CircuitBreaker) reset() {
	cb.state = CircuitClosed
	cb.streaks = map[string]int{}
	cb.tripping = ""
}
