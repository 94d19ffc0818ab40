package source

import (
	"context"
	"io"
)

// Slice is a Source backed by an in-memory slice of Records, used in tests
// and small runs where standing up a real document-database cursor is not
// worth it.
type Slice struct {
	records []Record
	pos     int
}

// NewSlice returns a Source that yields records in order, then io.EOF.
func NewSlice(records []Record) *Slice {
	return &Slice{records: records}
}

// Next implements Source.
func (s *Slice) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

var _ Source = (*Slice)(nil)
