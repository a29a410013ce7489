// Package resilience provides retry and circuit breaker patterns for the
// external model endpoint.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state — calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many consecutive failures — calls are rejected
	// immediately until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen allows a single probe call to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before allowing a
	// probe call. Default: 60s.
	ResetTimeout time.Duration
}

// CircuitBreaker guards a single external service.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it returns
// ErrCircuitOpen until the reset timeout has elapsed, at which point the
// breaker moves to half-open and admits one probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
			cb.state = CircuitHalfOpen
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// Record updates the breaker with the result of a call.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.state = CircuitClosed
		cb.consecutiveFailures = 0
		return
	}

	cb.consecutiveFailures++
	cb.lastFailureTime = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		// A failed probe reopens the circuit.
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
}
