package throttle

import (
	"log"
	"sync"
	"time"
)

// BreakerState is the admission state of one provider's circuit
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig holds circuit breaker thresholds
type BreakerConfig struct {
	// FailureThreshold is the consecutive overload failures that open
	// the circuit from closed.
	FailureThreshold int
	// SuccessThreshold is the consecutive successes that close the
	// circuit from half-open.
	SuccessThreshold int
	// OpenDuration is the cooldown before an open circuit allows probes.
	OpenDuration time.Duration
	// HalfOpenMaxCalls caps probe attempts while half-open.
	HalfOpenMaxCalls int
}

// CircuitBreaker gatekeeps call admission per provider under sustained
// overload. Only overload-classified failures move the state machine;
// other failures are counted for observability only.
type CircuitBreaker struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	states map[string]*breakerState
	now    func() time.Time
}

// breakerState is the per-provider state machine record
type breakerState struct {
	state                BreakerState
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenCalls        int
	otherFailures        int
	lastFailure          time.Time
	openedAt             time.Time
}

// NewCircuitBreaker creates a breaker with the given thresholds
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:    cfg,
		states: make(map[string]*breakerState),
		now:    time.Now,
	}
}

// state lazily creates per-provider state; caller must hold cb.mu
func (cb *CircuitBreaker) state(provider string) *breakerState {
	st, ok := cb.states[provider]
	if !ok {
		st = &breakerState{state: BreakerClosed}
		cb.states[provider] = st
	}
	return st
}

// CanMakeRequest evaluates the state machine and reports whether the
// caller may proceed. An open circuit moves to half-open once the
// cooldown has elapsed; each half-open check counts as a probe.
func (cb *CircuitBreaker) CanMakeRequest(provider string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state(provider)
	switch st.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Sub(st.openedAt) >= cb.cfg.OpenDuration {
			st.state = BreakerHalfOpen
			st.consecutiveSuccesses = 0
			st.halfOpenCalls = 1
			log.Printf("Circuit for %s moved to half-open", provider)
			return true
		}
		return false
	case BreakerHalfOpen:
		if st.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			cb.trip(provider, st)
			return false
		}
		st.halfOpenCalls++
		return true
	}
	return false
}

// RefundProbe returns a half-open admission granted by CanMakeRequest
// when the call was denied downstream before reaching the provider.
// A probe only counts once the provider was actually called.
func (cb *CircuitBreaker) RefundProbe(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state(provider)
	if st.state == BreakerHalfOpen && st.halfOpenCalls > 0 {
		st.halfOpenCalls--
	}
}

// RecordSuccess updates counters after a successful provider call
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state(provider)
	switch st.state {
	case BreakerClosed:
		st.consecutiveFailures = 0
	case BreakerHalfOpen:
		st.consecutiveSuccesses++
		if st.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
			st.state = BreakerClosed
			st.consecutiveFailures = 0
			st.consecutiveSuccesses = 0
			st.halfOpenCalls = 0
			log.Printf("Circuit for %s closed after recovery", provider)
		}
	}
}

// RecordFailure updates counters after a failed provider call. Only
// overload failures can open the circuit; everything else is tracked
// for observability.
func (cb *CircuitBreaker) RecordFailure(provider string, isOverload bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state(provider)
	if !isOverload {
		st.otherFailures++
		return
	}

	st.lastFailure = cb.now()
	switch st.state {
	case BreakerClosed:
		st.consecutiveFailures++
		if st.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.trip(provider, st)
		}
	case BreakerHalfOpen:
		cb.trip(provider, st)
	}
}

// trip opens the circuit and restarts the cooldown; caller holds cb.mu
func (cb *CircuitBreaker) trip(provider string, st *breakerState) {
	st.state = BreakerOpen
	st.openedAt = cb.now()
	st.consecutiveSuccesses = 0
	st.halfOpenCalls = 0
	log.Printf("Circuit for %s opened (consecutive overload failures: %d)", provider, st.consecutiveFailures)
}

// State returns the current breaker state for a provider
func (cb *CircuitBreaker) State(provider string) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state(provider).state
}

// Snapshot returns breaker state for every known provider
func (cb *CircuitBreaker) Snapshot() map[string]BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	out := make(map[string]BreakerState, len(cb.states))
	for name, st := range cb.states {
		out[name] = st.state
	}
	return out
}
