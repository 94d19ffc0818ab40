// Package nerfallback provides the named-entity-recognition second opinion
// the pipeline consults when the rule classifier's confidence is too low to
// trust on its own. The adapter is a dependency-injected external
// collaborator: production wires an LLM-backed implementation, tests use
// NullAdapter so the core pipeline logic never depends on model
// availability.
package nerfallback

import (
	"context"
	"time"

	"github.com/herbarium-data/collector-canon/internal/classify"
)

// EntityLabel is the coarse NER label the adapter assigns to a detected span.
type EntityLabel string

const (
	LabelPerson       EntityLabel = "PERSON"
	LabelOrganization EntityLabel = "ORGANIZATION"
)

// Entity is one named-entity span detected in the raw text.
type Entity struct {
	Text  string
	Label EntityLabel
	Score float64
}

// Result is the NER adapter's opinion: the entities it found plus a
// confidence-adjusted classification it recommends in their place.
type Result struct {
	Entities           []Entity
	ImprovedConfidence float64
	ImprovedCategory   classify.Category
	// Discard is set when the adapter finds no usable entities in text too
	// short or ambiguous to classify at all; the driver should drop the
	// record entirely rather than persist it under any category.
	Discard bool
}

// Adapter is the external NER collaborator contract. Implementations must
// respect ctx cancellation — the driver gives every call a bounded timeout
// (see Config.Timeout) and does not retry on failure.
type Adapter interface {
	Classify(ctx context.Context, rawText string, ruleConfidence float64) (Result, error)
}

// Config controls when and how long the adapter is consulted.
type Config struct {
	// TriggerThreshold: the rule classifier's confidence must be strictly
	// below this for the adapter to be consulted at all.
	TriggerThreshold float64
	// Timeout bounds a single Classify call.
	Timeout time.Duration
}

// DefaultConfig matches the domain spec's defaults: trigger below 0.85,
// 5 second timeout.
func DefaultConfig() Config {
	return Config{TriggerThreshold: 0.85, Timeout: 5 * time.Second}
}
