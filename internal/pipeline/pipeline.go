// Package pipeline composes the similarity kernel, normalizer, atomizer,
// rule classifier, NER fallback, and canonical store into the end-to-end
// collector-attribution canonicalization pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/herbarium-data/collector-canon/internal/atomize"
	"github.com/herbarium-data/collector-canon/internal/canonstore"
	"github.com/herbarium-data/collector-canon/internal/classify"
	"github.com/herbarium-data/collector-canon/internal/nerfallback"
	"github.com/herbarium-data/collector-canon/internal/normalize"
	"github.com/herbarium-data/collector-canon/internal/observe"
	"github.com/herbarium-data/collector-canon/internal/source"
)

// floorConfidence is the minimum confidence ever persisted for a canonical
// entity or one of its variations (T1). A record whose final classification
// confidence cannot clear this is reclassified as NaoDeterminado at exactly
// this value rather than dropped.
const floorConfidence = 0.70

// Config controls the driver's classification gates and worker pool sizing.
// Unlike internal/canonstore's fixed merge-threshold invariant, these are
// operator-tunable (see internal/config.Config).
type Config struct {
	// ConfidenceThreshold is the floor below which a record's final
	// classification confidence (rule-based or NER-corrected) is
	// reclassified as NaoDeterminado at exactly floorConfidence.
	ConfidenceThreshold float64
	// NERTriggerThreshold: rule-classifier confidence strictly below this
	// triggers a call to the NER adapter.
	NERTriggerThreshold float64
	// NERTimeout bounds a single NER adapter call; on expiry the rule
	// result stands, raised to floorConfidence if needed.
	NERTimeout time.Duration
	// BatchSize sizes the reader-to-worker channel buffer, so a slow store
	// writer cannot stall the source reader indefinitely.
	BatchSize int
	// Workers is the number of concurrent classify/atomize/normalize
	// workers. Store writes always run on a single goroutine regardless.
	// Defaults to 4 when unset.
	Workers int
}

// Stats summarizes one Run. Run does not fill NERInvocations, NERTimeouts
// or NERFailures; they stay zero, and NER calls are counted only by the
// observe.Metrics NERCalls counter.
type Stats struct {
	RecordsProcessed int
	AtomsProduced    int
	EntitiesCreated  int
	EntitiesMatched  int
	RecordsDiscarded int
	NERInvocations   int
	NERTimeouts      int
	NERFailures      int
	StoreErrors      int
}

// Driver composes the rule classifier, NER fallback, atomizer, normalizer,
// and canonical store over a stream of source records. Store writes are
// serialized through a single goroutine (see Run) so Driver itself holds no
// mutable state once constructed and needs no locking.
type Driver struct {
	classifier *classify.Classifier
	ner        nerfallback.Adapter
	store      canonstore.Store
	metrics    *observe.Metrics
	cfg        Config
}

// New constructs a Driver. ner may be nil, in which case nerfallback.NullAdapter
// is used (rule classification stands on its own). metrics may be nil, in
// which case observe.DefaultMetrics is used.
func New(classifier *classify.Classifier, ner nerfallback.Adapter, store canonstore.Store, metrics *observe.Metrics, cfg Config) *Driver {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if ner == nil {
		ner = nerfallback.NullAdapter{}
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Driver{classifier: classifier, ner: ner, store: store, metrics: metrics, cfg: cfg}
}

// outcome is what a worker decided to do with one name atom, handed off to
// the single store-writer goroutine.
type outcome struct {
	recordID   string
	candidate  canonstore.CandidateEntity
	variation  string
	confidence float64
	discarded  bool
	discardWhy string
}

// Run drains src to completion (or until ctx is cancelled), processing each
// record through classification, optional NER correction, atomization, and
// normalization, and upserting the resulting atoms into the canonical
// store. Store writes are serialized through a single writer goroutine
// regardless of Workers (§5's single-logical-writer requirement); a
// cancelled ctx stops the run at the next batch boundary with already
// persisted results intact.
func (d *Driver) Run(ctx context.Context, src source.Source) (Stats, error) {
	var stats Stats
	outcomes := make(chan outcome, d.cfg.BatchSize)
	records := make(chan source.Record, d.cfg.BatchSize)

	g, gctx := errgroup.WithContext(ctx)

	// Single reader: source.Source is not safe for concurrent Next calls.
	g.Go(func() error {
		defer close(records)
		for {
			rec, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("pipeline: read source: %w", err)
			}
			select {
			case records <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	// Bounded worker pool: classification, NER, atomization, normalization.
	// None of these touch the store directly; they only emit outcomes.
	var workers sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for rec := range records {
				for _, oc := range d.processRecord(gctx, rec) {
					select {
					case outcomes <- oc:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			return nil
		})
	}

	// Closer: once every worker has drained records, no further outcomes
	// are produced, so the single writer below can stop after draining.
	go func() {
		workers.Wait()
		close(outcomes)
	}()

	// Single writer: the only goroutine that calls d.store.Upsert.
	g.Go(func() error {
		for oc := range outcomes {
			d.applyOutcome(gctx, oc, &stats)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// processRecord runs one record through classify -> optional NER -> atomize
// -> normalize, returning zero or more outcomes (one per name atom, or one
// discard/NaoDeterminado marker).
//
// A record that clears no rule at all (RuleName "default", the classifier's
// no-match catch-all) is discarded rather than persisted: it carries no
// signal worth keeping, unlike an explicit "unknown collector" placeholder
// (RuleName "unknown_placeholder") or a weak-but-real pattern match that
// only failed to clear the confidence floor, both of which are kept as
// NaoDeterminado entities with the record's own raw text standing in for a
// canonical name.
func (d *Driver) processRecord(ctx context.Context, rec source.Record) []outcome {
	result := d.classifier.Classify(rec.CollectorText)
	d.metrics.RecordClassification(ctx, string(result.Category))

	if result.Confidence < d.cfg.NERTriggerThreshold {
		corrected, discard := d.consultNER(ctx, rec, result)
		if discard {
			d.metrics.RecordDiscarded(ctx, "ner_no_entities")
			return []outcome{{recordID: rec.ID, discarded: true, discardWhy: "ner_no_entities"}}
		}
		result = corrected
	}

	if result.Confidence < d.cfg.ConfidenceThreshold {
		result = classify.Result{Category: classify.NaoDeterminado, Confidence: floorConfidence, RuleName: result.RuleName}
	}

	if result.Category == classify.NaoDeterminado {
		if result.RuleName == "default" {
			d.metrics.RecordDiscarded(ctx, "unclassifiable")
			return []outcome{{recordID: rec.ID, discarded: true, discardWhy: "unclassifiable"}}
		}
		return []outcome{d.naoDeterminadoOutcome(rec.ID, rec.CollectorText, result)}
	}

	if result.Category != classify.ConjuntoPessoas {
		return []outcome{d.normalizeAtom(rec.ID, rec.CollectorText, result)}
	}

	atoms := atomize.Atomize(rec.CollectorText, result.Category)
	if len(atoms) == 0 {
		d.metrics.RecordDiscarded(ctx, "no_atoms")
		return []outcome{{recordID: rec.ID, discarded: true, discardWhy: "no_atoms"}}
	}
	out := make([]outcome, 0, len(atoms))
	for _, a := range atoms {
		out = append(out, d.normalizeAtom(rec.ID, a.Text, result))
	}
	return out
}

// consultNER calls the NER adapter within its configured timeout and
// translates its verdict back into a classify.Result, plus whether the
// record should be discarded outright. On timeout, error, or when the
// adapter declines to improve on the rule result (ImprovedCategory left
// zero-value, as NullAdapter always does), the rule result stands, raised
// to floorConfidence if needed (§7).
func (d *Driver) consultNER(ctx context.Context, rec source.Record, ruleResult classify.Result) (classify.Result, bool) {
	nctx, cancel := context.WithTimeout(ctx, d.cfg.NERTimeout)
	defer cancel()

	res, err := d.ner.Classify(nctx, rec.CollectorText, ruleResult.Confidence)
	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		d.metrics.RecordNERCall(ctx, status)
		slog.Warn("pipeline: NER adapter failed, rule result stands",
			slog.String("record_id", rec.ID), slog.String("status", status), slog.Any("error", err))
		return raiseToFloor(ruleResult), false
	}
	d.metrics.RecordNERCall(ctx, "ok")

	if res.Discard {
		return classify.Result{}, true
	}
	if res.ImprovedCategory == "" {
		return raiseToFloor(ruleResult), false
	}
	return classify.Result{Category: res.ImprovedCategory, Confidence: res.ImprovedConfidence, RuleName: "ner"}, false
}

// raiseToFloor reclassifies r as NaoDeterminado at exactly floorConfidence
// when its own confidence can't clear that floor; otherwise r stands as-is.
func raiseToFloor(r classify.Result) classify.Result {
	if r.Confidence < floorConfidence {
		r.Category = classify.NaoDeterminado
		r.Confidence = floorConfidence
	}
	return r
}

// naoDeterminadoOutcome builds the outcome for a record kept as
// NaoDeterminado: the record's own trimmed text stands in for a canonical
// name verbatim, bypassing normalize.Normalize entirely. Normalize is tuned
// for person-name-shaped text and would reject or mangle placeholder text
// like "?" or "sem coletor" rather than preserve it.
func (d *Driver) naoDeterminadoOutcome(recordID, rawText string, result classify.Result) outcome {
	text := strings.TrimSpace(rawText)
	return outcome{
		recordID: recordID,
		candidate: canonstore.CandidateEntity{
			CanonicalName:            text,
			EntityType:               classify.NaoDeterminado,
			ClassificationConfidence: result.Confidence,
		},
		variation:  text,
		confidence: result.Confidence,
	}
}

// normalizeAtom validates one name atom (Pessoa, Empresa, or GrupoPessoas;
// ConjuntoPessoas atoms arrive here one person at a time, post-atomization)
// and turns it into an outcome. normalize.Normalize's validity gate is
// scoped to person names (§4.2: "a single name string", its bare-word
// rejection explicitly reads "too generic to canonicalize as a person") —
// applying it to an institution or group name would reject exactly the
// common case of a single bare word ("EMBRAPA") that is perfectly valid for
// those categories. So the gate only runs for Pessoa/ConjuntoPessoas atoms;
// Empresa/GrupoPessoas atoms only need a non-empty check, since their
// display derivation (full upper-case) never mangles arbitrary text.
// An atom the gate rejects falls back to NaoDeterminado at floorConfidence
// using its own raw text, the same way naoDeterminadoOutcome does, rather
// than being dropped. The atom's raw text is always what gets stored as the
// variation's exact-source spelling (canonstore.ComparisonKeyOf re-derives a
// comparison key from it at match time); only a brand new entity's
// CanonicalName uses the category's display-derivation rule (§4.4):
// "Surname, Initials" for a person, full upper-case for an institution or
// group.
func (d *Driver) normalizeAtom(recordID, atomText string, result classify.Result) outcome {
	isPersonLike := result.Category == classify.Pessoa || result.Category == classify.ConjuntoPessoas

	if isPersonLike {
		if _, err := normalize.Normalize(atomText); err != nil {
			return d.naoDeterminadoOutcome(recordID, atomText, classify.Result{Category: classify.NaoDeterminado, Confidence: floorConfidence})
		}
	} else if strings.TrimSpace(atomText) == "" {
		return d.naoDeterminadoOutcome(recordID, atomText, classify.Result{Category: classify.NaoDeterminado, Confidence: floorConfidence})
	}

	entityType, canonicalName := canonicalFor(result.Category, atomText)
	return outcome{
		recordID:   recordID,
		candidate:  canonstore.CandidateEntity{CanonicalName: canonicalName, EntityType: entityType, ClassificationConfidence: result.Confidence},
		variation:  atomText,
		confidence: result.Confidence,
	}
}

// canonicalFor maps a classification category to the entity_type actually
// persisted and the display-name derivation §4.4 prescribes for it.
// ConjuntoPessoas never reaches the store as an entity_type itself — it only
// ever exists to trigger atomization — so each of its atoms is stored as
// Pessoa, the same as a record the rule classifier matched as Pessoa
// directly.
func canonicalFor(category classify.Category, atomText string) (classify.Category, string) {
	switch category {
	case classify.Pessoa, classify.ConjuntoPessoas:
		return classify.Pessoa, classify.PersonDisplayName(atomText)
	default:
		return category, classify.InstitutionalDisplayName(atomText)
	}
}

// applyOutcome is the only place that calls d.store.Upsert; it runs on a
// single goroutine for the whole Run (§5). Store write failures are logged
// and counted, not fatal to the run: the current record is skipped, the
// driver continues (§7).
func (d *Driver) applyOutcome(ctx context.Context, oc outcome, stats *Stats) {
	stats.RecordsProcessed++

	if oc.discarded {
		stats.RecordsDiscarded++
		return
	}

	start := time.Now()
	before, err := d.store.Upsert(ctx, oc.candidate, oc.variation, oc.confidence)
	d.metrics.StoreUpsertDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		// One retry, per §7's "invariant violation at persistence -> reload
		// + retry once, else fatal record-level error."
		before, err = d.store.Upsert(ctx, oc.candidate, oc.variation, oc.confidence)
		if err != nil {
			stats.StoreErrors++
			slog.Error("pipeline: store write failed after retry, skipping record",
				slog.String("record_id", oc.recordID), slog.Any("error", err))
			return
		}
	}

	stats.AtomsProduced++
	outcomeLabel := "created"
	if wasMerge(before, oc.variation) {
		outcomeLabel = "merged"
		stats.EntitiesMatched++
	} else {
		stats.EntitiesCreated++
	}
	d.metrics.RecordProcessed(ctx, outcomeLabel)
}

// wasMerge reports whether variationText already had more than one observed
// occurrence recorded against it by the time Upsert returned — the
// cheapest available signal for whether Upsert merged into an existing
// entity (occurrence count > 1, or more than one variation present) versus
// creating a brand new one (single variation, single occurrence).
func wasMerge(e canonstore.Entity, variationText string) bool {
	if len(e.Variations) > 1 {
		return true
	}
	for _, v := range e.Variations {
		if v.VariationText == variationText && v.OccurrenceCount > 1 {
			return true
		}
	}
	return false
}
