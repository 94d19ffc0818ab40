// Package classify assigns a coarse category to a raw collector-attribution
// string using an ordered set of rules, each carrying its own confidence.
// Low-confidence results are expected to be handed to the NER adapter
// (internal/nerfallback) for a second opinion; this package only implements
// the rule tier.
package classify

import (
	"regexp"
	"strings"
)

var (
	unknownExact = regexp.MustCompile(`(?i)^(\?|sem coletor|não identificado|nao identificado|desconhecido)$`)

	allCapsToken = regexp.MustCompile(`^[\p{Lu}]{2,}$`)

	institutionKeywords = []string{
		"embrapa", "usp", "unicamp", "herbário", "herbario", "jardim botânico",
		"jardim botanico", "instituto", "universidade", "faculdade", "inpa", "jbrj",
	}

	groupKeywords = []string{
		"equipe", "grupo", "projeto", "expedição", "expedicao", "pesquisas", "alunos",
	}

	etAlToken = regexp.MustCompile(`(?i)\bet\.?\s*al(ii|\.|\b)`)

	separatorChars = regexp.MustCompile(`[;&|]`)

	// surnameInitialsStrict requires the comma-then-initials form exactly.
	surnameInitialsStrict = regexp.MustCompile(`^[\p{Lu}][\p{L}]+(-[\p{Lu}][\p{L}]+)?,\s*[\p{Lu}]\.([\p{Lu}]\.)*$`)
	surnameInitialsAny    = regexp.MustCompile(`[\p{Lu}][\p{L}]+(-[\p{Lu}][\p{L}]+)?,\s*[\p{Lu}]\.([\p{Lu}]\.)*`)

	// initialsSurname recognizes "A.B. Surname".
	initialsSurname = regexp.MustCompile(`^[\p{Lu}]\.([\p{Lu}]\.)*\s+[\p{Lu}][\p{L}]+(-[\p{Lu}][\p{L}]+)?$`)

	// fullMultiWordName is a loose fallback: two or more name components,
	// each either a full capitalized word or a bare dotted initial, so a
	// given-name-plus-middle-initial-plus-surname shape ("Rafaela C.
	// Forzza") counts the same as an all-full-word name.
	fullMultiWordName = regexp.MustCompile(`^(?:[\p{Lu}][\p{L}]+|[\p{Lu}]\.)(?:\s+(?:[\p{Lu}][\p{L}]+|[\p{Lu}]\.)){1,}$`)
)

// Config controls the one policy decision the rule classifier leaves open:
// whether an all-uppercase token should be read as an institution acronym.
type Config struct {
	ClassifyAllCapsAsInstitution bool
}

// Classifier applies the priority-ordered rule table from the domain spec to
// raw collector-attribution text.
type Classifier struct {
	cfg Config
}

// New constructs a Classifier.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the first rule in priority order that matches raw, with
// that rule's confidence. Priority 5 (GrupoPessoas keywords with no
// person-pattern) and the NaoDeterminado default always match, so Classify
// never fails to produce a Result.
func (c *Classifier) Classify(raw string) Result {
	trimmed := strings.TrimSpace(raw)

	// Priority 1: explicit "unknown collector" placeholders.
	if unknownExact.MatchString(trimmed) {
		return Result{Category: NaoDeterminado, Confidence: 1.00, RuleName: "unknown_placeholder"}
	}

	lower := strings.ToLower(trimmed)

	// Priority 2: institutions.
	if c.cfg.ClassifyAllCapsAsInstitution && allCapsToken.MatchString(trimmed) {
		return Result{Category: Empresa, Confidence: 0.85, RuleName: "all_caps_acronym"}
	}
	if containsAny(lower, institutionKeywords) {
		return Result{Category: Empresa, Confidence: 0.85, RuleName: "institution_keyword"}
	}

	hasPersonPattern := surnameInitialsAny.MatchString(trimmed) || initialsSurname.MatchString(trimmed) || fullMultiWordName.MatchString(trimmed)

	// Priority 3: multiple people in one field.
	if separatorChars.MatchString(trimmed) || etAlToken.MatchString(trimmed) || countSurnameInitialsUnits(trimmed) >= 2 {
		confidence := 0.82
		if hasPersonPatternBothSides(trimmed) {
			confidence = 0.95
		}
		return Result{Category: ConjuntoPessoas, Confidence: confidence, RuleName: "multi_person_separator"}
	}

	// Priority 4: a single named person.
	if surnameInitialsStrict.MatchString(trimmed) || initialsSurname.MatchString(trimmed) {
		return Result{Category: Pessoa, Confidence: 0.80, RuleName: "person_pattern_strict"}
	}
	if fullMultiWordName.MatchString(trimmed) {
		return Result{Category: Pessoa, Confidence: 0.65, RuleName: "person_pattern_loose"}
	}

	// Priority 5: an unnamed collective.
	if containsAny(lower, groupKeywords) && !hasPersonPattern {
		return Result{Category: GrupoPessoas, Confidence: 0.70, RuleName: "group_keyword"}
	}

	// Default.
	return Result{Category: NaoDeterminado, Confidence: 0.60, RuleName: "default"}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func countSurnameInitialsUnits(s string) int {
	return len(surnameInitialsAny.FindAllString(s, -1))
}

// hasPersonPatternBothSides reports whether at least two independent
// "Surname, Initials" units appear in s, which raises confidence that a
// detected separator genuinely joins multiple people rather than being
// incidental punctuation.
func hasPersonPatternBothSides(s string) bool {
	return countSurnameInitialsUnits(s) >= 2
}
