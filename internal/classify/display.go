package classify

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// surnameCommaRest matches "Surname, <given names>" — the given-name part
	// may already be dotted initials or may be full words needing reduction.
	surnameCommaRest = regexp.MustCompile(`^([\p{Lu}][\p{L}]+(?:-[\p{Lu}][\p{L}]+)?),\s*(.+)$`)

	// initialsThenSurname matches "A.B. Surname", which needs reordering.
	initialsThenSurname = regexp.MustCompile(`^((?:[\p{Lu}]\.)+)\s+([\p{Lu}][\p{L}]+(?:-[\p{Lu}][\p{L}]+)?)$`)

	initialToken = regexp.MustCompile(`^(?:[\p{Lu}]\.)+$`)
)

// PersonDisplayName derives the canonical "Surname, Initials" display form
// for a Pessoa-classified name, per the rules the rule classifier uses to
// pick canonical_name when creating a new canonical entity. It does not
// touch accents or case beyond what's needed to produce initials — the
// surname keeps whatever casing and diacritics the input had.
func PersonDisplayName(raw string) string {
	trimmed := collapseSpace(strings.TrimSpace(raw))

	if m := surnameCommaRest.FindStringSubmatch(trimmed); m != nil {
		surname, rest := m[1], m[2]
		return surname + ", " + initialsFrom(rest)
	}

	if m := initialsThenSurname.FindStringSubmatch(trimmed); m != nil {
		initials, surname := m[1], m[2]
		return surname + ", " + initials
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return trimmed
	}
	surname := fields[len(fields)-1]
	given := strings.Join(fields[:len(fields)-1], " ")
	return surname + ", " + initialsFrom(given)
}

// InstitutionalDisplayName derives the canonical display form for Empresa
// and GrupoPessoas entities: the full text, uppercased.
func InstitutionalDisplayName(raw string) string {
	return strings.ToUpper(collapseSpace(strings.TrimSpace(raw)))
}

// initialsFrom turns a space-separated run of given names/initials into a
// single concatenated initials token, e.g. "Nogueira Braz" -> "N.B." and
// "G." -> "G." (already an initial, left alone).
func initialsFrom(s string) string {
	var b strings.Builder
	for _, tok := range strings.Fields(s) {
		if initialToken.MatchString(tok) {
			b.WriteString(strings.ToUpper(tok))
			continue
		}
		r := []rune(tok)
		if len(r) == 0 {
			continue
		}
		b.WriteRune(unicode.ToUpper(r[0]))
		b.WriteByte('.')
	}
	return b.String()
}

var interiorSpace = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return interiorSpace.ReplaceAllString(s, " ")
}
