package nerfallback

import (
	"context"

	"github.com/herbarium-data/collector-canon/internal/resilience"
)

// CircuitBreakerAdapter wraps another Adapter with a circuit breaker so a
// flaky or rate-limited NER backend doesn't pay its timeout on every
// subsequent record once it starts failing — once the breaker opens, calls
// fail fast and the caller's rule-classifier result stands, exactly as it
// would on a single timeout.
type CircuitBreakerAdapter struct {
	next Adapter
	cb   *resilience.CircuitBreaker
}

// NewCircuitBreakerAdapter wraps next with a breaker configured by cfg.
func NewCircuitBreakerAdapter(next Adapter, cfg resilience.CircuitBreakerConfig) *CircuitBreakerAdapter {
	return &CircuitBreakerAdapter{
		next: next,
		cb:   resilience.NewCircuitBreaker(cfg),
	}
}

// Classify forwards to the wrapped adapter through the circuit breaker. When
// the breaker is open, Classify returns a zero Result and nil error — the
// same "rule result stands" contract as a timeout or parse failure.
func (a *CircuitBreakerAdapter) Classify(ctx context.Context, rawText string, ruleConfidence float64) (Result, error) {
	var result Result
	err := a.cb.Execute(func() error {
		r, err := a.next.Classify(ctx, rawText, ruleConfidence)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return Result{}, nil //nolint:nilerr // breaker-open/upstream failure degrades to "rule result stands"
	}
	return result, nil
}

var _ Adapter = (*CircuitBreakerAdapter)(nil)
