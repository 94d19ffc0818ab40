// Package export writes canonical entities to the tabular CSV format
// described in the canonicalization pipeline's external interface:
// canonicalName, variations, and occurrenceCounts, the latter two
// semicolon-joined in insertion order.
//
// This is a hand-written writer rather than encoding/csv: the format
// mandates no field quoting and uses a non-comma delimiter for the
// variations/counts cells, which encoding/csv's RFC 4180 quoting would
// actively fight (any value containing the struct's own delimiter would be
// quoted, which this format forbids).
package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/herbarium-data/collector-canon/internal/canonstore"
)

const header = "canonicalName,variations,occurrenceCounts\n"

// WriteCSV writes entities to w in canonicalName,variations,occurrenceCounts
// order. variations and occurrenceCounts are semicolon-joined, element-wise
// aligned to each entity's Variations slice (insertion order). No field is
// quoted; confidence fields are not exported. Output is UTF-8 with no BOM.
func WriteCSV(w io.Writer, entities []canonstore.Entity) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	for _, e := range entities {
		if err := writeRow(bw, e); err != nil {
			return fmt.Errorf("export: write row for %q: %w", e.CanonicalName, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}

func writeRow(bw *bufio.Writer, e canonstore.Entity) error {
	variations := make([]string, len(e.Variations))
	counts := make([]string, len(e.Variations))
	for i, v := range e.Variations {
		variations[i] = v.VariationText
		counts[i] = strconv.Itoa(v.OccurrenceCount)
	}

	_, err := fmt.Fprintf(bw, "%s,%s,%s\n",
		e.CanonicalName,
		strings.Join(variations, ";"),
		strings.Join(counts, ";"),
	)
	return err
}
