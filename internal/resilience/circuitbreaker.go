// Package resilience guards calls to external collaborators the pipeline
// cannot control the health of — an LLM-backed NER backend, a remote
// provider, anything reachable only over the network.
//
// [CircuitBreaker] is the three-state breaker (closed → open → half-open)
// that stops a caller from hammering a backend that has already started
// failing. [FallbackGroup] builds on it: an ordered chain of same-typed
// backends, each behind its own breaker, tried in sequence until one
// answers — see internal/nerfallback for the concrete NER use of it.
//
// Every exported type here is safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is the error [CircuitBreaker.Execute] returns instead of
// calling fn, for as long as the breaker is open and its reset timeout has
// not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is one of the three modes a [CircuitBreaker] can be in.
type State int

const (
	// StateClosed forwards every call — the default, healthy mode.
	StateClosed State = iota

	// StateOpen rejects every call immediately with [ErrCircuitOpen]. Entered
	// after too many consecutive failures; left once the reset timeout has
	// elapsed, at which point the breaker moves to StateHalfOpen.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through to test
	// whether the backend has recovered. Enough successes closes the
	// breaker again; any failure sends it straight back to StateOpen.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes one [CircuitBreaker]. Every field has a
// zero-value fallback applied by [NewCircuitBreaker], so a caller that only
// cares about the name can leave the rest unset.
type CircuitBreakerConfig struct {
	// Name labels this breaker in log output — useful once a process holds
	// more than one (e.g. one per entry in a [FallbackGroup]).
	Name string

	// MaxFailures is how many consecutive failures while closed trip the
	// breaker open. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before it lets a probe
	// call through (state half-open). Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds how many probe calls a half-open breaker admits
	// before deciding to close (all succeeded) or re-open (any failed).
	// Default: 3.
	HalfOpenMax int
}

// CircuitBreaker is the three-state breaker described in the package doc.
// Safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        StateClosed,
	}
}

// Execute calls fn if the current state allows it, and folds the outcome
// back into the breaker's state before returning fn's error unchanged. A
// closed breaker always calls fn; an open one returns [ErrCircuitOpen]
// without calling fn unless the reset timeout has just elapsed, in which
// case it first steps to half-open and lets the call through as a probe.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			slog.Info("circuit breaker transitioning to half-open",
				"name", cb.name)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == StateHalfOpen
	if probing {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.recordFailure(probing)
	} else {
		cb.recordSuccess(probing)
	}
	return err
}

// recordFailure updates failure accounting after a call. cb.mu must be held.
func (cb *CircuitBreaker) recordFailure(probing bool) {
	cb.lastFailure = time.Now()

	if probing {
		cb.halfOpenFails++
		cb.state = StateOpen
		cb.consecutiveFail = cb.maxFailures
		slog.Warn("circuit breaker re-opened from half-open",
			"name", cb.name)
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail)
	}
}

// recordSuccess updates success accounting after a call. cb.mu must be held.
func (cb *CircuitBreaker) recordSuccess(probing bool) {
	if probing {
		successes := cb.halfOpenCalls - cb.halfOpenFails
		if successes >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			slog.Info("circuit breaker closed after successful probes",
				"name", cb.name)
		}
		return
	}

	cb.consecutiveFail = 0
}

// State reports the breaker's current [State]. An open breaker whose reset
// timeout has already elapsed is reported as [StateHalfOpen] even though the
// actual field flip only happens inside the next [Execute] call — callers
// that just want to know "would a call be let through right now" get the
// right answer either way.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears its failure
// counters, bypassing the normal probe-then-recover path. Intended for
// operator intervention, not for use by Execute callers themselves.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenFails = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
