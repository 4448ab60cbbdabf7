/*
Package feed provides implementations of rollup.ReadingSource.

PURPOSE:
  The pipeline core only knows the ReadingSource interface. This package
  supplies the two real sources:

  Simulator:  Generates plausible cumulative kWh series for the
              registered devices. Used for development and demos in
              place of a live vendor feed.
  HTTPSource: Fetches the day's readings from a vendor HTTP endpoint.

SEE ALSO:
  - rollup/source.go: The contract both sources implement
*/
package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/gridline/meter-rollup/rollup"
)

// DeviceLister supplies the meter ids to simulate. The sqlite registry
// satisfies this.
type DeviceLister interface {
	ListDeviceIDs(ctx context.Context) ([]string, error)
}

// StaticDevices is a fixed DeviceLister for tests and demos.
type StaticDevices []string

func (s StaticDevices) ListDeviceIDs(context.Context) ([]string, error) {
	return s, nil
}

// Simulator generates cumulative readings per device, every 30 minutes.
// Per-slot increments follow the daily usage curve: low-moderate draw at
// night, lighter during working hours, heaviest in the evening.
//
// Generated days are cached by run key, so re-fetching a date during
// recovery returns the same data instead of inventing a new day.
type Simulator struct {
	Devices DeviceLister

	mu   sync.Mutex
	rnd  *rand.Rand
	last map[string]decimal.Decimal // cumulative carry across days
	days map[string]rollup.Readings
}

// NewSimulator creates a simulator over the given devices. The seed makes
// a run reproducible.
func NewSimulator(devices DeviceLister, seed int64) *Simulator {
	return &Simulator{
		Devices: devices,
		rnd:     rand.New(rand.NewSource(seed)),
		last:    make(map[string]decimal.Decimal),
		days:    make(map[string]rollup.Readings),
	}
}

// Fetch returns the day's readings for every registered device.
func (s *Simulator) Fetch(ctx context.Context, date rollup.RunDate) (rollup.Readings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.days[date.Key()]; ok {
		return cached, nil
	}

	ids, err := s.Devices.ListDeviceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %v: %w", err, rollup.ErrUpstreamFetch)
	}

	slots := rollup.TimeSlots()
	readings := make(rollup.Readings, len(ids))
	for _, id := range ids {
		cumulative := s.last[id]
		series := make(map[string]decimal.Decimal, len(slots))
		for i, slot := range slots {
			if i > 0 {
				cumulative = cumulative.Add(s.increment(i / 2)).Round(2)
			}
			series[slot] = cumulative
		}
		s.last[id] = cumulative
		readings[id] = series
	}

	s.days[date.Key()] = readings
	return readings, nil
}

// increment draws a per-slot kWh delta for the given hour of day.
func (s *Simulator) increment(hour int) decimal.Decimal {
	var lo, hi float64
	switch {
	case hour < 8:
		lo, hi = 0.35, 0.40
	case hour < 19:
		lo, hi = 0.20, 0.35
	default:
		lo, hi = 0.35, 0.45
	}
	return decimal.NewFromFloat(lo + s.rnd.Float64()*(hi-lo)).Round(2)
}

var _ rollup.ReadingSource = (*Simulator)(nil)
