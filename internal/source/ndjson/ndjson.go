// Package ndjson provides a source.Source reading line-delimited JSON
// records from a file, one of the two reference Source implementations
// named alongside source.Slice.
package ndjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/herbarium-data/collector-canon/internal/source"
)

// line is the on-disk shape of one NDJSON record.
type line struct {
	ID            string `json:"id"`
	CollectorText string `json:"collector_text"`
}

// Source reads source.Records from a newline-delimited JSON file, one
// object per line.
type Source struct {
	f       *os.File
	scanner *bufio.Scanner
	lineNum int
}

// Open opens path and returns a Source reading from it. Call Close when
// done.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ndjson: open %q: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Source{f: f, scanner: sc}, nil
}

// Next implements source.Source. Blank lines are skipped.
func (s *Source) Next(ctx context.Context) (source.Record, error) {
	if err := ctx.Err(); err != nil {
		return source.Record{}, err
	}

	for {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return source.Record{}, fmt.Errorf("ndjson: read line %d: %w", s.lineNum+1, err)
			}
			return source.Record{}, io.EOF
		}
		s.lineNum++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return source.Record{}, fmt.Errorf("ndjson: parse line %d: %w", s.lineNum, err)
		}
		return source.Record{ID: l.ID, CollectorText: l.CollectorText}, nil
	}
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	return s.f.Close()
}

var _ source.Source = (*Source)(nil)
