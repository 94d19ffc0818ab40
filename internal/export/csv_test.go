package export_test

import (
	"strings"
	"testing"

	"github.com/herbarium-data/collector-canon/internal/canonstore"
	"github.com/herbarium-data/collector-canon/internal/classify"
	"github.com/herbarium-data/collector-canon/internal/export"
)

func sampleEntities() []canonstore.Entity {
	return []canonstore.Entity{
		{
			CanonicalName: "Forzza, R.C.",
			EntityType:    classify.Pessoa,
			Variations: []canonstore.NameVariation{
				{VariationText: "Forzza, R.C.", OccurrenceCount: 12},
				{VariationText: "Forzza R.C.", OccurrenceCount: 3},
			},
		},
		{
			CanonicalName: "EMBRAPA",
			EntityType:    classify.Empresa,
			Variations: []canonstore.NameVariation{
				{VariationText: "EMBRAPA", OccurrenceCount: 40},
			},
		},
		{
			CanonicalName: "Não determinado",
			EntityType:    classify.NaoDeterminado,
			Variations:    []canonstore.NameVariation{},
		},
	}
}

func TestWriteCSV_Format(t *testing.T) {
	var buf strings.Builder
	if err := export.WriteCSV(&buf, sampleEntities()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "canonicalName,variations,occurrenceCounts\n") {
		t.Fatalf("missing or wrong header: %q", out)
	}
	if !strings.Contains(out, "Forzza, R.C.,Forzza, R.C.;Forzza R.C.,12;3\n") {
		t.Errorf("unexpected row for Forzza: %q", out)
	}
	if strings.Contains(out, `"`) {
		t.Errorf("expected no field quoting, got %q", out)
	}
}

func TestRoundTrip_PreservesCanonicalNameVariationsAndCounts(t *testing.T) {
	entities := sampleEntities()

	var buf strings.Builder
	if err := export.WriteCSV(&buf, entities); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := export.ParseCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != len(entities) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(entities))
	}

	for i, e := range entities {
		row := rows[i]
		if row.CanonicalName != e.CanonicalName {
			t.Errorf("row %d CanonicalName = %q, want %q", i, row.CanonicalName, e.CanonicalName)
		}
		if len(row.Variations) != len(e.Variations) {
			t.Fatalf("row %d Variations = %v, want %d entries", i, row.Variations, len(e.Variations))
		}
		for j, v := range e.Variations {
			if row.Variations[j] != v.VariationText {
				t.Errorf("row %d variation %d = %q, want %q", i, j, row.Variations[j], v.VariationText)
			}
			if row.Counts[j] != v.OccurrenceCount {
				t.Errorf("row %d count %d = %d, want %d", i, j, row.Counts[j], v.OccurrenceCount)
			}
		}
	}
}
