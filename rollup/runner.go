/*
runner.go - Recovery and fan-out orchestration

PURPOSE:
  Drives one daily cycle through its states:

    RECOVERING   finish whatever a killed previous run left undone
    INGESTING    unconditionally re-fetch and publish the daily reading
    FANNING_OUT  run the three downstream stages concurrently
    DONE         the ledger now reflects this date's outcomes

  Recovery is guarded by the ledger; the normal ingestion path is not,
  because every scheduled invocation fetches fresh upstream data. The
  three downstream stages are independent: they read the same daily file
  but write disjoint targets, so a failure (or panic) in one never
  cancels or corrupts another.

SEE ALSO:
  - pipeline.go: The stages themselves
  - ledger.go: HasCompleted fail-safe semantics
*/
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// stageFor maps a ledger task to its stage method.
func (p *Pipeline) stageFor(task TaskName) func(context.Context, RunDate) error {
	switch task {
	case TaskDailyReading:
		return p.ArchiveDailyReading
	case TaskMonthlyReading:
		return p.ArchiveMonthlyReading
	case TaskDailyConsumption:
		return p.ArchiveDailyConsumption
	case TaskMonthlyConsumption:
		return p.ArchiveMonthlyConsumption
	default:
		return func(context.Context, RunDate) error {
			return fmt.Errorf("unknown task %q", task)
		}
	}
}

// completed consults the ledger, failing safe: an unreadable ledger
// means "not completed" and the work is redone.
func (p *Pipeline) completed(ctx context.Context, task TaskName, date RunDate) bool {
	done, err := p.Ledger.HasCompleted(ctx, task, date.Key())
	if err != nil {
		log.Printf("[Pipeline] completion check for %s: %v (assuming not completed)", task, err)
		return false
	}
	return done
}

// Recover finishes any tasks a previous run for this date left
// incomplete. Ingestion is retried first since everything depends on its
// file; downstream tasks then run sequentially. Failures are logged and
// left for the next run, recovery itself never aborts.
func (p *Pipeline) Recover(ctx context.Context, date RunDate) {
	log.Printf("[Pipeline] recovering run %s", date)

	if p.completed(ctx, TaskDailyReading, date) {
		log.Printf("[Pipeline] %s already completed", TaskDailyReading)
	} else {
		log.Printf("[Pipeline] %s not completed, restarting", TaskDailyReading)
		if err := p.ArchiveDailyReading(ctx, date); err != nil {
			log.Printf("[Pipeline] recovery: %s: %v", TaskDailyReading, err)
		}
	}

	for _, task := range DownstreamTasks {
		if p.completed(ctx, task, date) {
			log.Printf("[Pipeline] %s already completed", task)
			continue
		}
		log.Printf("[Pipeline] %s not completed, restarting", task)
		if err := p.stageFor(task)(ctx, date); err != nil {
			// Likely a missing daily file while ingestion itself is
			// failing; the stage recorded its failure, nothing to unwind.
			log.Printf("[Pipeline] recovery: %s: %v", task, err)
		}
	}

	log.Printf("[Pipeline] recovery for %s complete", date)
}

// Run executes one full daily cycle for the date: recovery, then fresh
// ingestion, then the concurrent downstream fan-out. It returns the
// ingestion error (downstream skipped) or the joined downstream
// failures; nil means all four tasks succeeded.
func (p *Pipeline) Run(ctx context.Context, date RunDate) error {
	p.Recover(ctx, date)

	log.Printf("[Pipeline] ingesting run %s", date)
	if err := p.ArchiveDailyReading(ctx, date); err != nil {
		log.Printf("[Pipeline] ingestion failed, downstream stages skipped: %v", err)
		return err
	}

	log.Printf("[Pipeline] fanning out run %s", date)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for _, task := range DownstreamTasks {
		wg.Add(1)
		go func(task TaskName) {
			defer wg.Done()
			if err := p.runIsolated(ctx, task, date); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}(task)
	}
	wg.Wait()

	if len(failures) > 0 {
		log.Printf("[Pipeline] run %s done with %d failed stage(s)", date, len(failures))
		return errors.Join(failures...)
	}
	log.Printf("[Pipeline] run %s done, all tasks completed", date)
	return nil
}

// runIsolated gives each downstream stage its own failure domain: a
// panic is contained, recorded as that stage's failure, and reported
// like any other error.
func (p *Pipeline) runIsolated(ctx context.Context, task TaskName, date RunDate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", task, r)
			p.recordFailure(ctx, task, date, err)
		}
	}()
	return p.stageFor(task)(ctx, date)
}
