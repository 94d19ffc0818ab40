package classify_test

import (
	"testing"

	"github.com/herbarium-data/collector-canon/internal/classify"
)

func newClassifier() *classify.Classifier {
	return classify.New(classify.Config{ClassifyAllCapsAsInstitution: true})
}

func TestClassify_UnknownPlaceholder(t *testing.T) {
	for _, raw := range []string{"?", "sem coletor", "não identificado", "desconhecido"} {
		got := newClassifier().Classify(raw)
		if got.Category != classify.NaoDeterminado || got.Confidence != 1.00 {
			t.Errorf("Classify(%q) = %+v, want NaoDeterminado/1.00", raw, got)
		}
	}
}

func TestClassify_InstitutionKeyword(t *testing.T) {
	got := newClassifier().Classify("Instituto Nacional de Pesquisas da Amazônia")
	if got.Category != classify.Empresa || got.Confidence != 0.85 {
		t.Errorf("Classify(institution) = %+v, want Empresa/0.85", got)
	}
}

func TestClassify_AllCapsAcronym(t *testing.T) {
	got := newClassifier().Classify("EMBRAPA")
	if got.Category != classify.Empresa {
		t.Errorf("Classify(EMBRAPA) = %+v, want Empresa", got)
	}
}

func TestClassify_AllCapsAcronymDisabledByConfig(t *testing.T) {
	c := classify.New(classify.Config{ClassifyAllCapsAsInstitution: false})
	got := c.Classify("XYZQ")
	if got.Category == classify.Empresa {
		t.Errorf("Classify(XYZQ) with policy disabled = %+v, want not Empresa via all-caps rule", got)
	}
}

func TestClassify_MultiPersonSemicolon(t *testing.T) {
	got := newClassifier().Classify("Forzza, R.C.; Silva, A.B.")
	if got.Category != classify.ConjuntoPessoas {
		t.Errorf("Classify(multi-person) = %+v, want ConjuntoPessoas", got)
	}
	if got.Confidence != 0.95 {
		t.Errorf("Classify(multi-person) confidence = %v, want 0.95 (person pattern both sides)", got.Confidence)
	}
}

func TestClassify_EtAl(t *testing.T) {
	got := newClassifier().Classify("Botelho, R.D. et al.")
	if got.Category != classify.ConjuntoPessoas {
		t.Errorf("Classify(et al.) = %+v, want ConjuntoPessoas", got)
	}
}

func TestClassify_SinglePersonStrict(t *testing.T) {
	got := newClassifier().Classify("Forzza, R.C.")
	if got.Category != classify.Pessoa || got.Confidence != 0.80 {
		t.Errorf("Classify(single person) = %+v, want Pessoa/0.80", got)
	}
}

func TestClassify_SinglePersonLooseFullName(t *testing.T) {
	got := newClassifier().Classify("Alisson Nogueira Braz")
	if got.Category != classify.Pessoa || got.Confidence != 0.65 {
		t.Errorf("Classify(loose person) = %+v, want Pessoa/0.65", got)
	}
}

func TestClassify_GroupKeyword(t *testing.T) {
	got := newClassifier().Classify("Equipe de campo")
	if got.Category != classify.GrupoPessoas || got.Confidence != 0.70 {
		t.Errorf("Classify(group) = %+v, want GrupoPessoas/0.70", got)
	}
}

func TestClassify_DefaultFallback(t *testing.T) {
	got := newClassifier().Classify("###garbled###")
	if got.Category != classify.NaoDeterminado || got.Confidence != 0.60 {
		t.Errorf("Classify(garbled) = %+v, want NaoDeterminado/0.60", got)
	}
}

func TestPersonDisplayName_AlreadyCanonicalForm(t *testing.T) {
	if got := classify.PersonDisplayName("Forzza, R.C."); got != "Forzza, R.C." {
		t.Errorf("PersonDisplayName = %q, want %q", got, "Forzza, R.C.")
	}
}

func TestPersonDisplayName_ReordersInitialsSurname(t *testing.T) {
	if got := classify.PersonDisplayName("R.C. Forzza"); got != "Forzza, R.C." {
		t.Errorf("PersonDisplayName = %q, want %q", got, "Forzza, R.C.")
	}
}

func TestPersonDisplayName_FullNameReducedToInitials(t *testing.T) {
	if got := classify.PersonDisplayName("Alisson Nogueira Braz"); got != "Braz, A.N." {
		t.Errorf("PersonDisplayName = %q, want %q", got, "Braz, A.N.")
	}
}

func TestPersonDisplayName_MixedDottedAndBareGivenNames(t *testing.T) {
	if got := classify.PersonDisplayName("Débora G. Takaki"); got != "Takaki, D.G." {
		t.Errorf("PersonDisplayName = %q, want %q", got, "Takaki, D.G.")
	}
}

func TestPersonDisplayName_ReducesFullGivenNameAfterComma(t *testing.T) {
	if got := classify.PersonDisplayName("Grespan, TIAGO"); got != "Grespan, T." {
		t.Errorf("PersonDisplayName = %q, want %q", got, "Grespan, T.")
	}
}

func TestPersonDisplayName_HyphenatedSurnamePreserved(t *testing.T) {
	if got := classify.PersonDisplayName("Silva-Santos, R."); got != "Silva-Santos, R." {
		t.Errorf("PersonDisplayName = %q, want %q", got, "Silva-Santos, R.")
	}
}

func TestInstitutionalDisplayName_Uppercases(t *testing.T) {
	if got := classify.InstitutionalDisplayName("Instituto Nacional de Pesquisas"); got != "INSTITUTO NACIONAL DE PESQUISAS" {
		t.Errorf("InstitutionalDisplayName = %q", got)
	}
}
