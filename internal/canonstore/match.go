package canonstore

import (
	"strings"
	"unicode"

	"github.com/herbarium-data/collector-canon/internal/normalize"
	"github.com/herbarium-data/collector-canon/internal/similarity"
)

// FindBestMatch implements the matching algorithm shared by every Store
// backend: score key (already a comparison key, per internal/normalize)
// against every candidate entity's variations using the similarity kernel,
// take the best-scoring variation per entity, and return the best-scoring
// entity overall. Ties are broken by oldest CreatedAt, so grouping is stable
// as new, equally-similar entities are later created.
//
// A variation's comparison key is recomputed from its stored exact-source
// spelling at match time rather than cached, so the two sides of the
// comparison always go through the same normalization rules.
//
// Two spellings that are identical once non-alphabetic characters are
// stripped short-circuit to a score of 1.0 without running the full kernel —
// this keeps punctuation-only spelling variants ("Forzza R.C." vs
// "Forzza, R.C.") from ever scoring below a perfect match.
func FindBestMatch(key string, candidates []Entity, weights similarity.Weights) (*Match, bool) {
	strippedKey := stripNonAlpha(key)

	var best *Match
	for i := range candidates {
		c := &candidates[i]
		score := scoreAgainst(key, strippedKey, c, weights)

		if best == nil || score > best.Score ||
			(score == best.Score && c.CreatedAt.Before(best.Entity.CreatedAt)) {
			best = &Match{Entity: *c, Score: score}
		}
	}
	return best, best != nil
}

func scoreAgainst(key, strippedKey string, candidate *Entity, weights similarity.Weights) float64 {
	best := 0.0
	for _, v := range candidate.Variations {
		vKey := ComparisonKeyOf(v.VariationText)
		if stripNonAlpha(vKey) == strippedKey {
			return 1.0
		}
		s := similarity.Combined(key, vKey, weights)
		if s > best {
			best = s
		}
	}
	return best
}

// ComparisonKeyOf derives the comparison key for an exact-source spelling
// the same way a fresh atom's key is derived. Backends use this to convert
// an incoming variation's exact-source text into the key FindBestMatch
// expects before calling it from Upsert, and FindBestMatch itself uses it to
// recompute each stored variation's key at match time rather than caching
// it. Normalization is expected to succeed on text already accepted into the
// store once; on the rare case it doesn't (a stored spelling that would now
// be rejected), the raw text itself is used as a conservative fallback
// rather than dropping the variation from scoring entirely.
func ComparisonKeyOf(variationText string) string {
	n, err := normalize.Normalize(variationText)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(variationText))
	}
	return n.ComparisonKey
}

func stripNonAlpha(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
