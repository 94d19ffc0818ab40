// Package source defines the pull-model stream abstraction the pipeline
// driver reads input records from. Concrete backends (a document database
// cursor, a file reader) are the integrator's responsibility; this package
// only fixes the contract plus a couple of reference implementations used
// in tests and small runs.
package source

import "context"

// Record is one raw collector-attribution field pulled from the source
// system, identified by an opaque ID meaningful to that system.
type Record struct {
	ID            string
	CollectorText string
}

// Source is a pull-model stream of Records: the driver asks for the next
// record rather than the source pushing records at the driver.
//
// Implementations must be safe for a single caller; the driver does not
// call Next concurrently on the same Source.
type Source interface {
	// Next returns the next Record, or io.EOF once the source is exhausted.
	// A cancelled ctx should abort promptly with ctx.Err().
	Next(ctx context.Context) (Record, error)
}
