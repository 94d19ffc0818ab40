// Package canonstore implements the canonical-entity store: the
// online-clustering "find similar or create" lookup that backs collector
// name grouping, plus the shared matching algorithm both the in-memory and
// Postgres-backed implementations use.
package canonstore

import (
	"context"
	"time"

	"github.com/herbarium-data/collector-canon/internal/classify"
)

// NameVariation is one observed spelling of a canonical entity's name.
type NameVariation struct {
	VariationText        string
	OccurrenceCount      int
	AssociationConfidence float64
	FirstSeen            time.Time
	LastSeen             time.Time
}

// Entity is a canonical collector entity: a person, institution, or group,
// identified uniquely by (CanonicalName, EntityType).
type Entity struct {
	ID                      string
	CanonicalName           string
	EntityType              classify.Category
	ClassificationConfidence float64
	GroupingConfidence      float64
	Variations              []NameVariation
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// CandidateEntity carries what Upsert needs to create a brand new entity
// when no sufficiently similar existing one is found.
type CandidateEntity struct {
	CanonicalName            string
	EntityType               classify.Category
	ClassificationConfidence float64
}

// Match is the result of a successful FindSimilar lookup.
type Match struct {
	Entity Entity
	Score  float64
}

// Store is the canonical-entity persistence contract. Implementations must
// serialize FindSimilar+Upsert pairs for a given EntityType themselves, or
// document that callers must (see internal/pipeline's single-writer
// driver, which is the only caller in this codebase).
type Store interface {
	// FindSimilar returns the best-matching entity of type t whose
	// comparison key scores at least threshold against key, or nil if none
	// qualifies.
	FindSimilar(ctx context.Context, key string, t classify.Category, threshold float64) (*Match, error)

	// Upsert attaches variationText to an existing matching entity (raising
	// its occurrence count) or creates a new entity from candidate.
	Upsert(ctx context.Context, candidate CandidateEntity, variationText string, assocConfidence float64) (Entity, error)

	// All returns every stored entity, for export.
	All(ctx context.Context) ([]Entity, error)

	// CreateSchema prepares the backing storage (idempotent).
	CreateSchema(ctx context.Context) error
}
