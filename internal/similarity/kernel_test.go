package similarity_test

import (
	"testing"

	"github.com/herbarium-data/collector-canon/internal/similarity"
)

func TestEditScore_EmptyEmpty(t *testing.T) {
	if got := similarity.EditScore("", ""); got != 1 {
		t.Errorf("EditScore(\"\", \"\") = %v, want 1", got)
	}
}

func TestEditScore_Identical(t *testing.T) {
	if got := similarity.EditScore("FORZZA", "FORZZA"); got != 1 {
		t.Errorf("EditScore identical = %v, want 1", got)
	}
}

func TestEditScore_Different(t *testing.T) {
	got := similarity.EditScore("FORZZA", "XXXXXX")
	if got != 0 {
		t.Errorf("EditScore completely different = %v, want 0", got)
	}
}

func TestEditScore_PartialMatch(t *testing.T) {
	got := similarity.EditScore("FORZZA, R.C.", "FORZZA, R.")
	if got <= 0 || got >= 1 {
		t.Errorf("EditScore partial match = %v, want in (0,1)", got)
	}
}

func TestJaroWinklerScore_Identical(t *testing.T) {
	if got := similarity.JaroWinklerScore("SANTOS, M.", "SANTOS, M."); got != 1 {
		t.Errorf("JaroWinklerScore identical = %v, want 1", got)
	}
}

func TestJaroWinklerScore_SharedPrefix(t *testing.T) {
	a := similarity.JaroWinklerScore("FORZZA, R.C.", "FORZZA, R.")
	b := similarity.JaroWinklerScore("FORZZA, R.C.", "XXXXXXX")
	if a <= b {
		t.Errorf("expected shared-prefix score (%v) to exceed unrelated score (%v)", a, b)
	}
}

func TestPhoneticMatch_SimilarSoundingSurnames(t *testing.T) {
	names := []string{"KUMERROW", "KUMMOROV", "KUMMROV", "KUMMROW"}
	for i := 1; i < len(names); i++ {
		if !similarity.PhoneticMatch(names[0], names[i]) {
			t.Errorf("expected %q and %q to phonetically match", names[0], names[i])
		}
	}
}

func TestPhoneticMatch_Unrelated(t *testing.T) {
	if similarity.PhoneticMatch("FORZZA", "NAKAMURA") {
		t.Error("expected unrelated surnames not to phonetically match")
	}
}

func TestPhoneticMatch_AccentedFolding(t *testing.T) {
	// "Guimarães" and an ASCII transliteration should still phonetically align
	// once diacritics are folded inside the coder.
	if !similarity.PhoneticMatch("GUIMARAES", "GUIMARÃES") {
		t.Error("expected accented and unaccented spellings to phonetically match")
	}
}

func TestPhoneticMatch_Empty(t *testing.T) {
	if similarity.PhoneticMatch("", "") {
		t.Error("expected empty strings not to match")
	}
}

func TestCombined_WeightsSumToOne(t *testing.T) {
	w := similarity.Weights{Edit: 0.3, JaroWinkler: 0.4, Phonetic: 0.3}
	got := similarity.Combined("FORZZA, R.C.", "FORZZA, R.C.", w)
	if got != 1 {
		t.Errorf("Combined identical strings = %v, want 1", got)
	}
}

func TestCombined_PhoneticDominatesWeakEditDistance(t *testing.T) {
	w := similarity.Weights{Edit: 0.3, JaroWinkler: 0.4, Phonetic: 0.3}
	score := similarity.Combined("KUMERROW", "KUMMROW", w)
	if score < 0.70 {
		t.Errorf("Combined phonetically similar but edit-distant names = %v, want >= 0.70", score)
	}
}

func TestCombined_ZeroWeights(t *testing.T) {
	w := similarity.Weights{}
	if got := similarity.Combined("A", "B", w); got != 0 {
		t.Errorf("Combined with zero weights = %v, want 0", got)
	}
}
