package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Row is one parsed CSV record: a canonical name paired with its observed
// variations and their element-wise aligned occurrence counts.
type Row struct {
	CanonicalName string
	Variations    []string
	Counts        []int
}

// splitColumns splits a data line into its three columns. canonicalName and
// variationText values routinely embed a comma of their own ("Surname,
// Initials"), which a plain comma-split cannot tell apart from a column
// boundary without field quoting. This format's values always write that
// comma as ", " (comma-then-space, per internal/classify's display-name
// convention), while WriteCSV never puts a space after the commas it uses
// as column separators — so a comma is a column boundary exactly when the
// next rune is not a space.
func splitColumns(line string) ([3]string, error) {
	var cols [3]string
	start := 0
	col := 0
	runes := []rune(line)
	for i := 0; i < len(runes) && col < 2; i++ {
		if runes[i] != ',' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == ' ' {
			continue // embedded comma within a field's own value
		}
		cols[col] = string(runes[start:i])
		start = i + 1
		col++
	}
	if col != 2 {
		return cols, fmt.Errorf("expected 3 columns, found %d column boundaries", col)
	}
	cols[2] = string(runes[start:])
	return cols, nil
}

// ParseCSV reads the format WriteCSV produces. It is not a general CSV
// parser — it relies on WriteCSV's specific column-separator convention
// (see splitColumns) rather than on field quoting, which this format does
// not use.
func ParseCSV(r io.Reader) ([]Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("export: read header: %w", err)
		}
		return nil, fmt.Errorf("export: empty input, expected a header row")
	}
	if sc.Text() != strings.TrimSuffix(header, "\n") {
		return nil, fmt.Errorf("export: unexpected header %q", sc.Text())
	}

	var rows []Row
	lineNum := 1
	for sc.Scan() {
		lineNum++
		line := sc.Text()
		if line == "" {
			continue
		}

		fields, err := splitColumns(line)
		if err != nil {
			return nil, fmt.Errorf("export: line %d: %w", lineNum, err)
		}

		row := Row{CanonicalName: fields[0]}
		if fields[1] != "" {
			row.Variations = strings.Split(fields[1], ";")
		}
		if fields[2] != "" {
			for _, c := range strings.Split(fields[2], ";") {
				n, err := strconv.Atoi(c)
				if err != nil {
					return nil, fmt.Errorf("export: line %d: bad occurrence count %q: %w", lineNum, c, err)
				}
				row.Counts = append(row.Counts, n)
			}
		}
		if len(row.Variations) != len(row.Counts) {
			return nil, fmt.Errorf("export: line %d: %d variations but %d counts", lineNum, len(row.Variations), len(row.Counts))
		}

		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("export: scan: %w", err)
	}
	return rows, nil
}
