// Package postgres implements canonstore.Store against PostgreSQL via pgx,
// for runs where the canonical entity set needs to outlive a single process
// or be inspected outside it.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/google/uuid"

	"github.com/herbarium-data/collector-canon/internal/canonstore"
	"github.com/herbarium-data/collector-canon/internal/classify"
	"github.com/herbarium-data/collector-canon/internal/similarity"
)

// mergeThreshold mirrors memstore's invariant floor: a variation is only
// ever attached to an existing entity at or above this score, regardless of
// the threshold callers pass to FindSimilar for their own gating decisions.
const mergeThreshold = 0.70

// Store is a PostgreSQL-backed canonstore.Store. Matching itself happens in
// process against the rows of the candidate's entity_type — canonstore.FindBestMatch
// is the same algorithm memstore uses, so both backends group identically.
// Callers (internal/pipeline's single-writer driver) must still serialize
// FindSimilar+Upsert pairs for a given EntityType; Store does not itself
// guard against concurrent writers racing past the SELECT used for matching.
type Store struct {
	pool *pgxpool.Pool

	weights similarity.Weights
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs Migrate to ensure the backing table
// exists.
func NewStore(ctx context.Context, dsn string, weights similarity.Weights) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	s := &Store{pool: pool, weights: weights}
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateSchema implements canonstore.Store.
func (s *Store) CreateSchema(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// FindSimilar implements canonstore.Store.
func (s *Store) FindSimilar(ctx context.Context, key string, t classify.Category, threshold float64) (*canonstore.Match, error) {
	entities, err := s.loadByType(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("postgres store: find similar: %w", err)
	}

	match, found := canonstore.FindBestMatch(key, entities, s.weights)
	if !found || match.Score < threshold {
		return nil, nil
	}
	return match, nil
}

// Upsert implements canonstore.Store. assocConfidence is the caller's
// classification confidence, already carried separately on
// candidate.ClassificationConfidence; it plays no part in the
// association/grouping confidence recorded here, which must always be the
// similarity score FindBestMatch computed (1.0 for a brand new entity, s*
// on merge — see merge below), per the domain model's grouping-score
// definition.
func (s *Store) Upsert(ctx context.Context, candidate canonstore.CandidateEntity, variationText string, assocConfidence float64) (canonstore.Entity, error) {
	entities, err := s.loadByType(ctx, candidate.EntityType)
	if err != nil {
		return canonstore.Entity{}, fmt.Errorf("postgres store: upsert: %w", err)
	}

	key := canonstore.ComparisonKeyOf(variationText)
	match, found := canonstore.FindBestMatch(key, entities, s.weights)
	if found && match.Score >= mergeThreshold {
		return s.merge(ctx, match.Entity, variationText, match.Score)
	}
	return s.create(ctx, candidate, variationText)
}

func (s *Store) create(ctx context.Context, candidate canonstore.CandidateEntity, variationText string) (canonstore.Entity, error) {
	now, err := s.dbNow(ctx)
	if err != nil {
		return canonstore.Entity{}, err
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

	variationsJSON, err := json.Marshal(entity.Variations)
	if err != nil {
		return canonstore.Entity{}, fmt.Errorf("postgres store: marshal variations: %w", err)
	}

	const q = `
		INSERT INTO canon_entities
		    (id, canonical_name, entity_type, classification_confidence,
		     grouping_confidence, variations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	_, err = s.pool.Exec(ctx, q,
		entity.ID, entity.CanonicalName, string(entity.EntityType),
		entity.ClassificationConfidence, entity.GroupingConfidence, variationsJSON, now)
	if err != nil {
		return canonstore.Entity{}, fmt.Errorf("postgres store: insert entity: %w", err)
	}
	return entity, nil
}

// merge attaches variationText to entity. similarityScore is the
// match.Score Upsert's FindBestMatch call computed for this variation
// against entity ("s*"); grouping_confidence is the minimum s* over every
// variation ever folded into the entity, so a later repeat sighting that
// happens to score lower pulls the entity's grouping confidence down with
// it, and never gets raised back up by a high-scoring repeat.
func (s *Store) merge(ctx context.Context, entity canonstore.Entity, variationText string, similarityScore float64) (canonstore.Entity, error) {
	now, err := s.dbNow(ctx)
	if err != nil {
		return canonstore.Entity{}, err
	}

	if similarityScore < entity.GroupingConfidence {
		entity.GroupingConfidence = similarityScore
	}

	merged := false
	for i := range entity.Variations {
		if entity.Variations[i].VariationText == variationText {
			entity.Variations[i].OccurrenceCount++
			entity.Variations[i].LastSeen = now
			merged = true
			break
		}
	}
	if !merged {
		entity.Variations = append(entity.Variations, canonstore.NameVariation{
			VariationText:         variationText,
			OccurrenceCount:       1,
			AssociationConfidence: similarityScore,
			FirstSeen:             now,
			LastSeen:              now,
		})
	}
	entity.UpdatedAt = now

	variationsJSON, err := json.Marshal(entity.Variations)
	if err != nil {
		return canonstore.Entity{}, fmt.Errorf("postgres store: marshal variations: %w", err)
	}

	const q = `
		UPDATE canon_entities
		SET    grouping_confidence = $2,
		       variations          = $3,
		       updated_at          = $4
		WHERE  id = $1`

	if _, err := s.pool.Exec(ctx, q, entity.ID, entity.GroupingConfidence, variationsJSON, now); err != nil {
		return canonstore.Entity{}, fmt.Errorf("postgres store: update entity: %w", err)
	}
	return entity, nil
}

// dbNow reads the database's clock so every timestamp recorded for a single
// Upsert call — entity and variation alike — agrees, the same way memstore's
// injected clock keeps a call's timestamps internally consistent.
func (s *Store) dbNow(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("postgres store: read clock: %w", err)
	}
	return now, nil
}

// All implements canonstore.Store.
func (s *Store) All(ctx context.Context) ([]canonstore.Entity, error) {
	const q = `
		SELECT id, canonical_name, entity_type, classification_confidence,
		       grouping_confidence, variations, created_at, updated_at
		FROM   canon_entities
		ORDER  BY canonical_name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: all: %w", err)
	}
	return collectEntities(rows)
}

func (s *Store) loadByType(ctx context.Context, t classify.Category) ([]canonstore.Entity, error) {
	const q = `
		SELECT id, canonical_name, entity_type, classification_confidence,
		       grouping_confidence, variations, created_at, updated_at
		FROM   canon_entities
		WHERE  entity_type = $1`

	rows, err := s.pool.Query(ctx, q, string(t))
	if err != nil {
		return nil, fmt.Errorf("load by type: %w", err)
	}
	return collectEntities(rows)
}

func collectEntities(rows pgx.Rows) ([]canonstore.Entity, error) {
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (canonstore.Entity, error) {
		var (
			e              canonstore.Entity
			entityType     string
			variationsJSON []byte
		)
		if err := row.Scan(
			&e.ID, &e.CanonicalName, &entityType, &e.ClassificationConfidence,
			&e.GroupingConfidence, &variationsJSON, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return canonstore.Entity{}, err
		}
		e.EntityType = classify.Category(entityType)
		if len(variationsJSON) > 0 {
			if err := json.Unmarshal(variationsJSON, &e.Variations); err != nil {
				return canonstore.Entity{}, fmt.Errorf("unmarshal variations: %w", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []canonstore.Entity{}
	}
	return entities, nil
}

var _ canonstore.Store = (*Store)(nil)
