// Package memstore implements canonstore.Store in memory, guarded by a
// mutex. It is used for tests and small runs where standing up Postgres is
// not worth it.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herbarium-data/collector-canon/internal/canonstore"
	"github.com/herbarium-data/collector-canon/internal/classify"
	"github.com/herbarium-data/collector-canon/internal/similarity"
)

// mergeThreshold is the invariant floor below which a variation is never
// attached to an existing entity — it always starts a new one instead. This
// is fixed by the domain model, unlike the configurable similarity
// threshold that gates classification/NER decisions upstream.
const mergeThreshold = 0.70

// Store is an in-memory canonstore.Store. All methods are safe for
// concurrent use; callers may skip the single-writer serialization the
// domain spec otherwise requires, since the mutex here already provides it.
type Store struct {
	weights similarity.Weights
	now     func() time.Time

	mu     sync.Mutex
	byType map[classify.Category][]canonstore.Entity
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store that scores candidate matches using weights.
func New(weights similarity.Weights, opts ...Option) *Store {
	s := &Store{
		weights: weights,
		now:     time.Now,
		byType:  make(map[classify.Category][]canonstore.Entity),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateSchema is a no-op for the in-memory backend.
func (s *Store) CreateSchema(ctx context.Context) error {
	return nil
}

// FindSimilar scores key against every entity of type t and returns the best
// match at or above threshold.
func (s *Store) FindSimilar(ctx context.Context, key string, t classify.Category, threshold float64) (*canonstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, found := canonstore.FindBestMatch(key, s.byType[t], s.weights)
	if !found || match.Score < threshold {
		return nil, nil
	}
	return match, nil
}

// Upsert attaches variationText to the best-matching entity of
// candidate.EntityType, or creates a new entity when no existing one scores
// at least mergeThreshold. It re-runs the same matching algorithm
// FindSimilar uses, so it stays correct whether or not the caller already
// called FindSimilar itself. On merge, the variation's association
// confidence and the entity's grouping confidence are the similarity score
// FindBestMatch just computed (match.Score, "s*" in the domain model), not
// assocConfidence — that parameter is the caller's classification
// confidence, a distinct quantity callers may still want recorded (see
// candidate.ClassificationConfidence) but not one that belongs in a
// grouping-score field.
func (s *Store) Upsert(ctx context.Context, candidate canonstore.CandidateEntity, variationText string, assocConfidence float64) (canonstore.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entities := s.byType[candidate.EntityType]

	key := canonstore.ComparisonKeyOf(variationText)
	match, found := canonstore.FindBestMatch(key, entities, s.weights)
	if found && match.Score >= mergeThreshold {
		return s.mergeLocked(candidate.EntityType, match.Entity.ID, variationText, match.Score, now)
	}

	entity := canonstore.Entity{
		ID:                       uuid.NewString(),
		CanonicalName:            candidate.CanonicalName,
		EntityType:               candidate.EntityType,
		ClassificationConfidence: candidate.ClassificationConfidence,
		GroupingConfidence:       1.0,
		Variations: []canonstore.NameVariation{{
			VariationText:         variationText,
			OccurrenceCount:       1,
			AssociationConfidence: 1.0,
			FirstSeen:             now,
			LastSeen:              now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byType[candidate.EntityType] = append(s.byType[candidate.EntityType], entity)
	return entity, nil
}

// mergeLocked attaches variationText to the entity identified by entityID.
// similarityScore is the match.Score FindBestMatch computed for this
// variation against that entity ("s*"); grouping_confidence is the minimum
// s* over every variation ever folded into the entity, per the domain
// model, so an existing occurrence's repeat sighting never raises it back
// up even if this particular repeat scored a perfect 1.0.
func (s *Store) mergeLocked(t classify.Category, entityID, variationText string, similarityScore float64, now time.Time) (canonstore.Entity, error) {
	entities := s.byType[t]
	for i := range entities {
		e := &entities[i]
		if e.ID != entityID {
			continue
		}

		if e.GroupingConfidence > similarityScore {
			e.GroupingConfidence = similarityScore
		}
		e.UpdatedAt = now

		for j := range e.Variations {
			if e.Variations[j].VariationText == variationText {
				e.Variations[j].OccurrenceCount++
				e.Variations[j].LastSeen = now
				return *e, nil
			}
		}

		e.Variations = append(e.Variations, canonstore.NameVariation{
			VariationText:         variationText,
			OccurrenceCount:       1,
			AssociationConfidence: similarityScore,
			FirstSeen:             now,
			LastSeen:              now,
		})
		return *e, nil
	}
	return canonstore.Entity{}, fmt.Errorf("memstore: entity %s not found during merge", entityID)
}

// All returns every stored entity across all types.
func (s *Store) All(ctx context.Context) ([]canonstore.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []canonstore.Entity
	for _, entities := range s.byType {
		all = append(all, entities...)
	}
	return all, nil
}

var _ canonstore.Store = (*Store)(nil)
