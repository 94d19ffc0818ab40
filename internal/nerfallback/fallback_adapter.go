package nerfallback

import (
	"context"

	"github.com/herbarium-data/collector-canon/internal/resilience"
)

// FallbackAdapter chains an ordered list of Adapters — typically one model
// backend per entry — behind a shared [resilience.FallbackGroup]. Classify
// tries the primary first; if its breaker is open or the call itself fails,
// the next entry is tried, and so on. Only when every entry is exhausted
// does Classify degrade to the "rule result stands" contract the rest of
// this package uses for a single failing adapter.
//
// This is for operators running more than one NER backend (e.g. a cheaper
// secondary model, or a self-hosted model as a backstop for a rate-limited
// primary) who want the chain to fail over automatically rather than go
// straight to NullAdapter behavior the moment the primary has a bad day.
type FallbackAdapter struct {
	group *resilience.FallbackGroup[Adapter]
}

// NewFallbackAdapter starts a chain with primary as its first entry, gated
// by a breaker configured by cfg.
func NewFallbackAdapter(primary Adapter, primaryName string, cfg resilience.CircuitBreakerConfig) *FallbackAdapter {
	return &FallbackAdapter{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another adapter to the chain, gated by its own breaker
// configured by cfg. Entries are tried in the order they were added.
func (f *FallbackAdapter) AddFallback(name string, adapter Adapter, cfg resilience.CircuitBreakerConfig) {
	f.group.AddFallback(name, adapter, cfg)
}

// Classify tries the chain in order and returns the first entry's successful
// Result. If every entry fails or has an open breaker, it returns a zero
// Result and nil error, same as CircuitBreakerAdapter does for a single
// exhausted adapter: the caller's rule-based result stands.
func (f *FallbackAdapter) Classify(ctx context.Context, rawText string, ruleConfidence float64) (Result, error) {
	result, err := resilience.ExecuteWithResult(f.group, func(a Adapter) (Result, error) {
		return a.Classify(ctx, rawText, ruleConfidence)
	})
	if err != nil {
		return Result{}, nil //nolint:nilerr // chain exhausted, rule result stands
	}
	return result, nil
}

var _ Adapter = (*FallbackAdapter)(nil)
