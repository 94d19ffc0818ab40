package nerfallback

import "context"

// NullAdapter never overrides the rule classifier. It lets callers and tests
// exercise the full pipeline without requiring a model backend, following
// the null-object pattern the rest of this codebase uses for optional
// external collaborators.
type NullAdapter struct{}

// Classify always returns a zero-confidence, empty Result, leaving the rule
// classifier's result as the driver's final answer.
func (NullAdapter) Classify(ctx context.Context, rawText string, ruleConfidence float64) (Result, error) {
	return Result{}, nil
}

var _ Adapter = NullAdapter{}
