// Package atomize splits a ConjuntoPessoas collector-attribution string into
// individual person-name atoms, one per collector, so each can be normalized
// and matched against the canonical store independently.
package atomize

import (
	"regexp"
	"strings"

	"github.com/herbarium-data/collector-canon/internal/classify"
)

// Separator identifies which delimiter produced an atom's boundary.
type Separator string

const (
	SeparatorNone      Separator = "None"
	SeparatorSemicolon Separator = "Semicolon"
	SeparatorAmpersand Separator = "Ampersand"
	SeparatorEtAl      Separator = "EtAl"
	SeparatorComma     Separator = "Comma"
	SeparatorPipe      Separator = "Pipe"
)

// AtomizedName is a single collector name split out of a ConjuntoPessoas
// field.
type AtomizedName struct {
	Text          string
	Position      int
	SeparatorUsed Separator
	ParentRawText string
}

var (
	etAlSplit = regexp.MustCompile(`(?i)\bet\.?\s*al(ii|\.|\b)`)

	// surnameInitials recognizes a "Surname, Initials" unit so the comma
	// promotion heuristic can tell a real separator-comma from punctuation
	// internal to a single person's name.
	surnameInitials = regexp.MustCompile(`[\p{Lu}][\p{L}]+(-[\p{Lu}][\p{L}]+)?,\s*[\p{Lu}]\.([\p{Lu}]\.)*`)
)

// Atomize splits text into its constituent person-name atoms when category
// is ConjuntoPessoas. For every other category it returns nil: atomization is
// meaningless for a single person, an institution, or an unnamed group.
func Atomize(text string, category classify.Category) []AtomizedName {
	if category != classify.ConjuntoPessoas {
		return nil
	}

	// Priority 1: "et al." truncates the field — everything from the match
	// onward is dropped, not split into its own atom.
	truncated := false
	if loc := etAlSplit.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
		truncated = true
	}

	segments := split(text)

	atoms := make([]AtomizedName, 0, len(segments))
	for _, s := range segments {
		cleaned := stripDigitRuns(strings.TrimSpace(s.text))
		if cleaned == "" {
			continue
		}
		atoms = append(atoms, AtomizedName{
			Text:          cleaned,
			Position:      len(atoms),
			SeparatorUsed: s.sep,
			ParentRawText: text,
		})
	}

	// The first atom to survive filtering is always None: a stray leading
	// separator with nothing before it doesn't separate anything.
	if len(atoms) > 0 {
		atoms[0].SeparatorUsed = SeparatorNone
	}

	// The atom immediately before a truncated "et al." suffix is tagged EtAl
	// rather than whatever separator split it from its predecessor, so the
	// record of the dropped names survives — unless it's the sole atom,
	// which always keeps SeparatorUsed=None.
	if truncated && len(atoms) > 1 {
		atoms[len(atoms)-1].SeparatorUsed = SeparatorEtAl
	}

	return atoms
}

type segment struct {
	text string
	sep  Separator
}

// split applies separator priority 2-5 in cascade: every segment produced by
// a higher-priority separator is re-examined for the next one, so a field
// mixing separators (e.g. "Silva, J. & R.C. Forzza; Santos, M.") splits on
// all of them rather than stopping at whichever appears first. Comma
// promotion only runs as a fallback when none of ;, &, | appear anywhere in
// the field, since it is the weakest separator in the priority order.
func split(text string) []segment {
	segs := []segment{{text: text, sep: SeparatorNone}}
	segs = splitEach(segs, ";", SeparatorSemicolon)
	segs = splitEach(segs, "&", SeparatorAmpersand)
	segs = splitEach(segs, "|", SeparatorPipe)

	if len(segs) == 1 {
		if parts, ok := splitOnPersonCommas(segs[0].text); ok {
			promoted := make([]segment, len(parts))
			for i, p := range parts {
				sep := SeparatorComma
				if i == 0 {
					sep = segs[0].sep
				}
				promoted[i] = segment{text: p, sep: sep}
			}
			return promoted
		}
	}
	return segs
}

// splitEach splits every segment containing ch on that character, tagging
// each new sub-segment with sep — except a sub-segment's own first part,
// which keeps whatever separator tag its parent segment already carried, so
// an earlier (higher-priority) separator's tag isn't overwritten.
func splitEach(segs []segment, ch string, sep Separator) []segment {
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		if !strings.Contains(s.text, ch) {
			out = append(out, s)
			continue
		}
		parts := strings.Split(s.text, ch)
		for i, p := range parts {
			tag := sep
			if i == 0 {
				tag = s.sep
			}
			out = append(out, segment{text: p, sep: tag})
		}
	}
	return out
}

// splitOnPersonCommas promotes commas to separators only when the text
// contains at least two repetitions of the "Surname, Initials" pattern —
// otherwise the lone comma inside a single "Surname, Initials" unit would be
// mistaken for a list separator.
func splitOnPersonCommas(text string) ([]string, bool) {
	matches := surnameInitials.FindAllStringIndex(text, -1)
	if len(matches) < 2 {
		return nil, false
	}

	parts := make([]string, 0, len(matches))
	start := 0
	for i, m := range matches {
		end := m[1]
		if i == len(matches)-1 {
			end = len(text)
		} else {
			// Extend to just before the next unit's surname starts, then
			// drop the joining comma at the split point.
			next := matches[i+1][0]
			end = next
		}
		segment := text[start:end]
		segment = strings.Trim(segment, " ,")
		parts = append(parts, segment)
		start = end
	}
	return parts, true
}

var digitRun = regexp.MustCompile(`\d+`)

func stripDigitRuns(s string) string {
	return strings.TrimSpace(digitRun.ReplaceAllString(s, ""))
}
