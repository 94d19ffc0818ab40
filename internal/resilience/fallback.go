package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned by [ExecuteWithResult] when every entry in a
// [FallbackGroup] either failed or had an open breaker.
var ErrAllFailed = errors.New("resilience: all fallback entries failed")

// fallbackEntry pairs one candidate value with the breaker that gates calls
// through it.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered chain of same-typed backends — a primary
// plus zero or more fallbacks — each behind its own [CircuitBreaker]. Callers
// drive it through the package-level [ExecuteWithResult], which tries each
// entry in order and stops at the first one that succeeds.
//
// A breaker opening on one entry never affects the others: a flaky fallback
// model degrades independently of the primary, and recovers independently
// too once its own reset timeout elapses.
type FallbackGroup[T any] struct {
	mu      sync.RWMutex
	entries []fallbackEntry[T]
}

// NewFallbackGroup creates a group whose first (and, until AddFallback is
// called, only) entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg CircuitBreakerConfig) *FallbackGroup[T] {
	if cfg.Name == "" {
		cfg.Name = primaryName
	}
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{{name: primaryName, value: primary, breaker: NewCircuitBreaker(cfg)}},
	}
}

// AddFallback appends another backend to the chain, tried only once every
// entry ahead of it has failed or has an open breaker. Safe to call while
// other goroutines are calling ExecuteWithResult against the same group.
func (g *FallbackGroup[T]) AddFallback(name string, value T, cfg CircuitBreakerConfig) {
	if cfg.Name == "" {
		cfg.Name = name
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, fallbackEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(cfg)})
}

// ExecuteWithResult runs fn against each entry of g in order, skipping any
// entry whose breaker is currently open, and returns the first successful
// result. If every entry fails (or is skipped), it returns an error that
// wraps ErrAllFailed and includes the last error observed in its message.
//
// This is a package-level function rather than a method because Go does not
// allow a method to introduce a type parameter beyond those of its receiver,
// and the result type R here is independent of the group's own T.
func ExecuteWithResult[T any, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	g.mu.RLock()
	entries := append([]fallbackEntry[T](nil), g.entries...)
	g.mu.RUnlock()

	var zero R
	var lastErr error
	for _, e := range entries {
		if e.breaker.State() == StateOpen {
			lastErr = fmt.Errorf("%s: %w", e.name, ErrCircuitOpen)
			continue
		}

		var result R
		err := e.breaker.Execute(func() error {
			r, err := fn(e.value)
			result = r
			return err
		})
		if err == nil {
			return result, nil
		}
		lastErr = fmt.Errorf("%s: %w", e.name, err)
		slog.Warn("fallback entry failed, trying next", "entry", e.name, "err", err)
	}
	if lastErr == nil {
		lastErr = ErrAllFailed
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Execute is the no-result form of ExecuteWithResult, for callers whose fn
// only reports success or failure.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}
