/*
scheduler.go - Daily pipeline trigger

PURPOSE:
  Invokes one pipeline run per calendar day for yesterday's readings.
  The pipeline itself assumes single-flight invocation; this scheduler
  is the in-process stand-in for the external cron that enforces it.

DESIGN:
  - Background goroutine with a configurable check interval
  - At most one run per run key; a successful run marks the key done
  - A failed run leaves the key unmarked, so the next tick retries it
    through the pipeline's recovery path

USAGE:
  scheduler := NewPipelineScheduler(pipeline)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - rollup/runner.go: What one run executes
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gridline/meter-rollup/rollup"
)

// PipelineScheduler triggers the daily rollup run.
type PipelineScheduler struct {
	Pipeline      *rollup.Pipeline
	CheckInterval time.Duration
	Enabled       bool

	ticker   *time.Ticker
	stop     chan bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	lastDone string // run key of the last successful run
}

// NewPipelineScheduler creates a scheduler with an hourly check.
func NewPipelineScheduler(pipeline *rollup.Pipeline) *PipelineScheduler {
	return &PipelineScheduler{
		Pipeline:      pipeline,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ps *PipelineScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run()

	log.Printf("[Scheduler] Started with check interval: %v", ps.CheckInterval)
}

// Stop stops the scheduler.
func (ps *PipelineScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ps *PipelineScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start
	ps.checkAndRun()

	for {
		select {
		case <-ps.ticker.C:
			ps.checkAndRun()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PipelineScheduler) checkAndRun() {
	date := rollup.Yesterday()

	ps.mu.Lock()
	done := ps.lastDone == date.Key()
	ps.mu.Unlock()
	if done {
		return
	}

	log.Printf("[Scheduler] Triggering pipeline run for %s", date)
	if err := ps.Pipeline.Run(context.Background(), date); err != nil {
		// Retried on the next tick; completed stages are skipped by recovery.
		log.Printf("[Scheduler] Run for %s failed: %v", date, err)
		return
	}

	ps.mu.Lock()
	ps.lastDone = date.Key()
	ps.mu.Unlock()
}

// RunNow triggers an immediate check (for testing/admin).
func (ps *PipelineScheduler) RunNow() {
	ps.checkAndRun()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ps *PipelineScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ps.CheckInterval)
}
