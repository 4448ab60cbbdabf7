package rollup

import (
	"fmt"
	"time"
)

// =============================================================================
// RUN DATE - The calendar day a pipeline run is scoped to
// =============================================================================

// RunDate identifies the calendar day being archived. It doubles as the
// run key: all completion records for one daily cycle carry Key().
type RunDate struct {
	t time.Time
}

func NewRunDate(year int, month time.Month, day int) RunDate {
	return RunDate{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Yesterday returns the run date for the normal daily cycle. The pipeline
// archives the previous day, once that day's final slot has been read.
func Yesterday() RunDate {
	now := time.Now()
	y := now.AddDate(0, 0, -1)
	return NewRunDate(y.Year(), y.Month(), y.Day())
}

// ParseRunDate parses a "YYYY-MM-DD" run key.
func ParseRunDate(s string) (RunDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return RunDate{}, fmt.Errorf("invalid run date %q: %w", s, err)
	}
	return RunDate{t: t}, nil
}

func (d RunDate) Year() string  { return d.t.Format("2006") }
func (d RunDate) Month() string { return d.t.Format("01") }
func (d RunDate) Day() string   { return d.t.Format("02") }

// DayLabel is the column label a day contributes to the monthly
// accumulator tables, e.g. "02-19".
func (d RunDate) DayLabel() string { return d.t.Format("01-02") }

// Key is the run key scoping one pipeline invocation in the ledger.
func (d RunDate) Key() string { return d.t.Format("2006-01-02") }

func (d RunDate) AddDays(n int) RunDate { return RunDate{t: d.t.AddDate(0, 0, n)} }
func (d RunDate) IsZero() bool          { return d.t.IsZero() }
func (d RunDate) String() string        { return d.Key() }

// =============================================================================
// TIME SLOTS - Fixed intra-day label set
// =============================================================================

// Readings arrive every 30 minutes, from 00:00 through 24:00 inclusive.
// The 24:00 slot is the end-of-day reading that feeds the monthly tables.
const slotsPerDay = 49

// TimeSlots returns the fixed ordered slot labels for one day.
func TimeSlots() []string {
	slots := make([]string, 0, slotsPerDay)
	for i := 0; i < slotsPerDay; i++ {
		slots = append(slots, fmt.Sprintf("%02d:%02d", i/2, (i%2)*30))
	}
	return slots
}

// Slot labels the stages key on directly.
const (
	SlotStartOfDay = "00:00"
	SlotEndOfDay   = "24:00"
)
