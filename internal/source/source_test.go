package source_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/herbarium-data/collector-canon/internal/source"
)

func TestSlice_YieldsInOrderThenEOF(t *testing.T) {
	s := source.NewSlice([]source.Record{
		{ID: "1", CollectorText: "Forzza, R.C."},
		{ID: "2", CollectorText: "EMBRAPA"},
	})
	ctx := context.Background()

	r1, err := s.Next(ctx)
	if err != nil || r1.ID != "1" {
		t.Fatalf("first Next = %+v, %v", r1, err)
	}
	r2, err := s.Next(ctx)
	if err != nil || r2.ID != "2" {
		t.Fatalf("second Next = %+v, %v", r2, err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("third Next err = %v, want io.EOF", err)
	}
}

func TestSlice_RespectsCancellation(t *testing.T) {
	s := source.NewSlice([]source.Record{{ID: "1"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next err = %v, want context.Canceled", err)
	}
}
