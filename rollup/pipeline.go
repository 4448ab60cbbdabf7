/*
pipeline.go - The four rollup stages

PURPOSE:
  One day's raw meter readings become four artifacts:

    daily reading ──┬── monthly reading     (end-of-day value per device)
                    ├── daily consumption   (per-slot deltas)
                    └── monthly consumption (end minus start of day)

  Each stage is a method on Pipeline. A stage loads its inputs from the
  deterministic paths in layout.go, publishes its output atomically, and
  records its own outcome in the completion ledger. No stage hands
  in-memory state to another, so any stage can run standalone during
  recovery.

FAILURE SEMANTICS:
  A failing stage leaves the previous artifact for its date untouched (or
  absent) and records a failure entry. Nothing retries within a run;
  retries happen across runs via recovery.

SEE ALSO:
  - runner.go: Recovery and fan-out orchestration
  - table.go: Merge and atomic-save semantics the stages rely on
*/
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// DeviceKey is the header of the key column in every artifact.
const DeviceKey = "meter_id"

// Pipeline runs the daily rollup against one data root.
type Pipeline struct {
	Source ReadingSource
	Ledger CompletionLedger
	Root   string // artifact root directory
}

// NewPipeline wires a pipeline over the given source, ledger and root.
func NewPipeline(source ReadingSource, ledger CompletionLedger, root string) *Pipeline {
	return &Pipeline{Source: source, Ledger: ledger, Root: root}
}

// =============================================================================
// STAGE 1 - DAILY READING (ingestion)
// =============================================================================

// ArchiveDailyReading fetches the day's raw readings and publishes the
// canonical daily reading table. The table always carries the full fixed
// slot set; slot labels the upstream sends outside that set are dropped.
// Re-running regenerates the file wholesale.
func (p *Pipeline) ArchiveDailyReading(ctx context.Context, date RunDate) error {
	path := DailyReadingPath(p.Root, date)
	log.Printf("[Pipeline] starting %s for %s", TaskDailyReading, date)

	data, err := p.Source.Fetch(ctx, date)
	if err != nil {
		if !errors.Is(err, ErrUpstreamFetch) {
			err = fmt.Errorf("%v: %w", err, ErrUpstreamFetch)
		}
		err = fmt.Errorf("fetch readings for %s: %w", date, err)
		p.recordFailure(ctx, TaskDailyReading, date, err)
		return err
	}

	table := NewTable(DeviceKey, TimeSlots()...)
	for device, series := range data {
		table.AddDevice(device)
		for _, slot := range table.Columns {
			if v, ok := series[slot]; ok {
				table.Set(device, slot, v)
			}
		}
	}

	if err := table.Save(path); err != nil {
		p.recordFailure(ctx, TaskDailyReading, date, err)
		return err
	}

	log.Printf("[Pipeline] daily readings archived: %s (%d devices)", path, len(data))
	return p.recordCompletion(ctx, TaskDailyReading, date)
}

// =============================================================================
// STAGE 2 - MONTHLY READING (accumulator fold)
// =============================================================================

// ArchiveMonthlyReading folds the day's end-of-day reading into the
// month's cumulative reading table, replacing the day's column if the
// date was processed before.
func (p *Pipeline) ArchiveMonthlyReading(ctx context.Context, date RunDate) error {
	log.Printf("[Pipeline] starting %s for %s", TaskMonthlyReading, date)

	daily, err := p.loadDaily(date)
	if err != nil {
		p.recordFailure(ctx, TaskMonthlyReading, date, err)
		return err
	}
	if !daily.HasColumn(SlotEndOfDay) {
		err := error(&MissingColumnError{Path: DailyReadingPath(p.Root, date), Column: SlotEndOfDay})
		log.Printf("[Pipeline] %s: %v", TaskMonthlyReading, err)
		p.recordFailure(ctx, TaskMonthlyReading, date, err)
		return err
	}

	return p.foldIntoMonthly(ctx, TaskMonthlyReading, date,
		MonthlyReadingPath(p.Root, date), daily.Column(SlotEndOfDay))
}

// =============================================================================
// STAGE 3 - DAILY CONSUMPTION (per-slot deltas)
// =============================================================================

// ArchiveDailyConsumption derives per-slot consumption deltas from the
// day's reading table. The first slot has no in-file predecessor and is
// fixed at 0.00; a delta is left blank when either reading is missing.
func (p *Pipeline) ArchiveDailyConsumption(ctx context.Context, date RunDate) error {
	path := DailyConsumptionPath(p.Root, date)
	log.Printf("[Pipeline] starting %s for %s", TaskDailyConsumption, date)

	daily, err := p.loadDaily(date)
	if err != nil {
		p.recordFailure(ctx, TaskDailyConsumption, date, err)
		return err
	}

	consumption := NewTable(DeviceKey, daily.Columns...)
	for _, device := range daily.Devices() {
		consumption.AddDevice(device)
		for i, slot := range daily.Columns {
			if i == 0 {
				consumption.Set(device, slot, decimal.Zero)
				continue
			}
			curr, okCurr := daily.Get(device, slot)
			prev, okPrev := daily.Get(device, daily.Columns[i-1])
			if okCurr && okPrev {
				consumption.Set(device, slot, curr.Sub(prev).Round(2))
			}
		}
	}

	if err := consumption.Save(path); err != nil {
		p.recordFailure(ctx, TaskDailyConsumption, date, err)
		return err
	}

	log.Printf("[Pipeline] daily consumption archived: %s", path)
	return p.recordCompletion(ctx, TaskDailyConsumption, date)
}

// =============================================================================
// STAGE 4 - MONTHLY CONSUMPTION (accumulator fold)
// =============================================================================

// ArchiveMonthlyConsumption derives each device's total daily consumption
// as end-of-day minus start-of-day and folds it into the month's
// consumption table. The total is taken from the readings, not from the
// daily consumption table; it may diverge from the per-slot delta sum by
// rounding, which is accepted.
func (p *Pipeline) ArchiveMonthlyConsumption(ctx context.Context, date RunDate) error {
	log.Printf("[Pipeline] starting %s for %s", TaskMonthlyConsumption, date)

	daily, err := p.loadDaily(date)
	if err != nil {
		p.recordFailure(ctx, TaskMonthlyConsumption, date, err)
		return err
	}
	for _, slot := range []string{SlotStartOfDay, SlotEndOfDay} {
		if !daily.HasColumn(slot) {
			err := error(&MissingColumnError{Path: DailyReadingPath(p.Root, date), Column: slot})
			log.Printf("[Pipeline] %s: %v", TaskMonthlyConsumption, err)
			p.recordFailure(ctx, TaskMonthlyConsumption, date, err)
			return err
		}
	}

	values := make(map[string]decimal.Decimal)
	for _, device := range daily.Devices() {
		start, okStart := daily.Get(device, SlotStartOfDay)
		end, okEnd := daily.Get(device, SlotEndOfDay)
		if okStart && okEnd {
			values[device] = end.Sub(start).Round(2)
		}
	}

	return p.foldIntoMonthly(ctx, TaskMonthlyConsumption, date,
		MonthlyConsumptionPath(p.Root, date), values)
}

// =============================================================================
// SHARED STAGE PLUMBING
// =============================================================================

// loadDaily loads the day's reading table, the input of every downstream
// stage.
func (p *Pipeline) loadDaily(date RunDate) (*Table, error) {
	path := DailyReadingPath(p.Root, date)
	table, err := Load(path)
	if errors.Is(err, ErrTableNotFound) {
		return nil, fmt.Errorf("daily reading file not found: %w", err)
	}
	return table, err
}

// foldIntoMonthly merges a labeled day column into the monthly
// accumulator at path, creating the table on the month's first day.
func (p *Pipeline) foldIntoMonthly(ctx context.Context, task TaskName, date RunDate, path string, values map[string]decimal.Decimal) error {
	monthly, err := Load(path)
	switch {
	case errors.Is(err, ErrTableNotFound):
		log.Printf("[Pipeline] creating new monthly file: %s", path)
		monthly = nil
	case err != nil:
		p.recordFailure(ctx, task, date, err)
		return err
	case monthly.HasColumn(date.DayLabel()):
		log.Printf("[Pipeline] date %s already exists in %s, replacing values", date.DayLabel(), path)
	}

	merged := MergeOrReplaceColumn(monthly, DeviceKey, date.DayLabel(), values)
	if err := merged.Save(path); err != nil {
		p.recordFailure(ctx, task, date, err)
		return err
	}

	log.Printf("[Pipeline] monthly file updated: %s", path)
	return p.recordCompletion(ctx, task, date)
}

// recordCompletion appends the success entry. If the ledger is down the
// stage's output is already published; the error is returned so the run
// reports it, and the next recovery re-runs the (idempotent) stage.
func (p *Pipeline) recordCompletion(ctx context.Context, task TaskName, date RunDate) error {
	if err := p.Ledger.Record(ctx, Completed(task, date)); err != nil {
		log.Printf("[Pipeline] recording completion of %s: %v", task, err)
		return fmt.Errorf("record completion of %s: %w", task, err)
	}
	return nil
}

// recordFailure appends a failure entry, best effort.
func (p *Pipeline) recordFailure(ctx context.Context, task TaskName, date RunDate, cause error) {
	log.Printf("[Pipeline] %s failed for %s: %v", task, date, cause)
	if err := p.Ledger.Record(ctx, Failed(task, date, cause)); err != nil {
		log.Printf("[Pipeline] recording failure of %s: %v", task, err)
	}
}
