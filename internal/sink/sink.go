// Package sink persists finalized run results. Sinks are external
// collaborators of the engine: they receive complete, immutable results
// after generation and are the only place I/O happens.
package sink

import (
	"context"

	"github.com/stratamed/journeysim/internal/cohort"
)

// Sink writes one finalized run result.
type Sink interface {
	// WriteResult persists the complete result of a run. The result is
	// read-only; implementations must not mutate it.
	WriteResult(ctx context.Context, res *cohort.Result) error

	// Close releases the sink's resources.
	Close() error
}
