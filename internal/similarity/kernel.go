// Package similarity implements the edit-distance, Jaro-Winkler, and
// phonetic string comparisons used to decide whether two collector names
// refer to the same person.
//
// All three component scores are pure functions over comparison keys —
// there is no shared state and nothing here suspends, so callers may invoke
// the kernel freely from multiple goroutines.
package similarity

import (
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/mozillazg/go-unidecode"
)

// Weights blends the three similarity components into a single combined
// score. The three fields must sum to 1 and be non-negative; this is
// validated once at config load (see internal/config), not on every call, so
// the hot path stays allocation-free.
type Weights struct {
	Edit        float64
	JaroWinkler float64
	Phonetic    float64
}

// EditScore returns a normalized Levenshtein similarity in [0,1]:
// 1 - distance/max(len(s1), len(s2)). Two empty strings score 1.
func EditScore(s1, s2 string) float64 {
	if s1 == "" && s2 == "" {
		return 1
	}
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	if maxLen == 0 {
		return 1
	}
	dist := matchr.Levenshtein(s1, s2)
	score := 1 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// JaroWinklerScore returns the standard Jaro-Winkler similarity (prefix
// weight 0.1, prefix cap 4) between s1 and s2.
func JaroWinklerScore(s1, s2 string) float64 {
	return matchr.JaroWinkler(s1, s2, false)
}

// PhoneticMatch reports whether s1 and s2 share a Double Metaphone code.
// Inputs are ASCII-folded before encoding — Portuguese-accented names share
// phonetics across spellings once diacritics are removed — so callers may
// pass keys in their original accented form. A match is "primary or
// secondary codes overlap", which generalizes a single-code equality check
// to Double Metaphone's dual-code scheme for stronger recall.
func PhoneticMatch(s1, s2 string) bool {
	p1, s1c := matchr.DoubleMetaphone(foldASCII(s1))
	p2, s2c := matchr.DoubleMetaphone(foldASCII(s2))

	if p1 == "" && s1c == "" {
		return false
	}
	if p2 == "" && s2c == "" {
		return false
	}
	return (p1 != "" && (p1 == p2 || p1 == s2c)) ||
		(s1c != "" && (s1c == p2 || s1c == s2c))
}

// foldASCII strips diacritics for the phonetic coder only; display forms and
// comparison keys elsewhere in the pipeline keep accents intact.
func foldASCII(s string) string {
	return unidecode.Unidecode(strings.ToUpper(s))
}

// Combined returns the weighted blend of EditScore, JaroWinklerScore, and a
// 0/1 PhoneticMatch indicator, per w. Callers are expected to have already
// validated that w's fields sum to 1.
func Combined(s1, s2 string, w Weights) float64 {
	phonetic := 0.0
	if PhoneticMatch(s1, s2) {
		phonetic = 1.0
	}
	return w.Edit*EditScore(s1, s2) + w.JaroWinkler*JaroWinklerScore(s1, s2) + w.Phonetic*phonetic
}
