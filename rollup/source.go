package rollup

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READING SOURCE - Upstream meter feed (external collaborator)
// =============================================================================

// Readings is one day of raw meter data: device id to slot label to
// cumulative reading. Values are pass-through; the pipeline does not
// enforce monotonicity.
type Readings map[string]map[string]decimal.Decimal

// ReadingSource provides the day's raw readings. Implementations live
// outside the core (HTTP vendor feed, simulator); any fetch or decoding
// failure surfaces as ErrUpstreamFetch.
type ReadingSource interface {
	Fetch(ctx context.Context, date RunDate) (Readings, error)
}

// SourceFunc adapts a function to ReadingSource.
type SourceFunc func(ctx context.Context, date RunDate) (Readings, error)

func (f SourceFunc) Fetch(ctx context.Context, date RunDate) (Readings, error) {
	return f(ctx, date)
}
