/*
ledger.go - Append-only completion ledger

PURPOSE:
  The ledger is the durable record of which tasks finished for which run
  key (calendar day). Recovery consults it to decide what to re-run, and
  the query layer consults it before trusting any artifact on disk:
  "file exists" alone is never a success signal.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never mutated or deleted.
  2. DURABLE: every Record is flushed before returning, so a crash
     immediately after a stage completes cannot lose the completion.
  3. LATEST-OUTCOME-WINS: the newest entry for a (task, run key) pair
     determines current status.
  4. FAIL-SAFE READS: if the ledger cannot be read, HasCompleted reports
     false. The worst case is redundant work, never silently skipped work.

FILE FORMAT:
  One human-readable line per event:

    2025-02-20T03:00:01Z | archive_monthly_reading | 2025-02-19 | completed successfully
    2025-02-20T03:00:02Z | archive_daily_consumption | 2025-02-19 | failed: missing precondition

  The "completed successfully" marker is stable and greppable; tooling can
  locate successes by substring without parsing the full line.

SEE ALSO:
  - store/memory.go: In-memory implementation for tests
  - store/sqlite: SQLite-backed implementation
  - runner.go: Recovery decisions driven by HasCompleted
*/
package rollup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// TASKS AND RECORDS
// =============================================================================

// TaskName identifies one of the four pipeline tasks in the ledger.
type TaskName string

const (
	TaskDailyReading       TaskName = "archive_daily_reading"
	TaskMonthlyReading     TaskName = "archive_monthly_reading"
	TaskDailyConsumption   TaskName = "archive_daily_consumption"
	TaskMonthlyConsumption TaskName = "archive_monthly_consumption"
)

// DownstreamTasks are the three tasks fanning out from the daily reading.
var DownstreamTasks = []TaskName{
	TaskMonthlyReading,
	TaskDailyConsumption,
	TaskMonthlyConsumption,
}

// SuccessMarker is the outcome substring identifying a successful entry.
const SuccessMarker = "completed successfully"

// CompletionRecord is one ledger event.
type CompletionRecord struct {
	Task       TaskName
	RunKey     string
	Success    bool
	Detail     string // failure reason; empty on success
	RecordedAt time.Time
}

// Completed builds a success record for task on the given run date.
func Completed(task TaskName, d RunDate) CompletionRecord {
	return CompletionRecord{Task: task, RunKey: d.Key(), Success: true, RecordedAt: time.Now().UTC()}
}

// Failed builds a failure record carrying the error detail.
func Failed(task TaskName, d RunDate, cause error) CompletionRecord {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return CompletionRecord{Task: task, RunKey: d.Key(), Detail: detail, RecordedAt: time.Now().UTC()}
}

// =============================================================================
// LEDGER INTERFACE
// =============================================================================

// CompletionLedger stores task outcomes per run key, append-only.
type CompletionLedger interface {
	// Record appends an outcome. The entry is durable when Record returns.
	Record(ctx context.Context, rec CompletionRecord) error

	// HasCompleted reports whether the latest entry for (task, runKey) is a
	// success. An unreadable ledger yields (false, error): callers log the
	// error and re-run the work.
	HasCompleted(ctx context.Context, task TaskName, runKey string) (bool, error)

	// Records returns all entries for a run key, oldest first.
	Records(ctx context.Context, runKey string) ([]CompletionRecord, error)
}

// =============================================================================
// FILE LEDGER - One line per event, append-only
// =============================================================================

// FileLedger is the line-file CompletionLedger.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger creates a ledger persisting to path. The file is created
// on first Record.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

func (l *FileLedger) Path() string { return l.path }

// Record appends one line and fsyncs before returning.
func (l *FileLedger) Record(_ context.Context, rec CompletionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ledger dir: %v: %w", err, ErrLedgerUnavailable)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger open: %v: %w", err, ErrLedgerUnavailable)
	}
	defer f.Close()

	if _, err := f.WriteString(formatRecord(rec) + "\n"); err != nil {
		return fmt.Errorf("ledger append: %v: %w", err, ErrLedgerUnavailable)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("ledger sync: %v: %w", err, ErrLedgerUnavailable)
	}
	return nil
}

// HasCompleted scans the file; entries are chronological, so the last
// match for (task, runKey) wins.
func (l *FileLedger) HasCompleted(ctx context.Context, task TaskName, runKey string) (bool, error) {
	records, err := l.scan(ctx)
	if err != nil {
		return false, err
	}
	completed := false
	for _, rec := range records {
		if rec.Task == task && rec.RunKey == runKey {
			completed = rec.Success
		}
	}
	return completed, nil
}

func (l *FileLedger) Records(ctx context.Context, runKey string) ([]CompletionRecord, error) {
	records, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []CompletionRecord
	for _, rec := range records {
		if rec.RunKey == runKey {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *FileLedger) scan(_ context.Context) ([]CompletionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // nothing recorded yet
		}
		return nil, fmt.Errorf("ledger read: %v: %w", err, ErrLedgerUnavailable)
	}
	defer f.Close()

	var records []CompletionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rec, ok := parseRecord(scanner.Text())
		if !ok {
			continue // tolerate foreign lines, never trust them as successes
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger read: %v: %w", err, ErrLedgerUnavailable)
	}
	return records, nil
}

// =============================================================================
// LINE FORMAT
// =============================================================================

const recordSeparator = " | "

func formatRecord(rec CompletionRecord) string {
	at := rec.RecordedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	outcome := SuccessMarker
	if !rec.Success {
		outcome = "failed"
		if rec.Detail != "" {
			outcome += ": " + sanitizeDetail(rec.Detail)
		}
	}
	return strings.Join([]string{
		at.UTC().Format(time.RFC3339),
		string(rec.Task),
		rec.RunKey,
		outcome,
	}, recordSeparator)
}

func parseRecord(line string) (CompletionRecord, bool) {
	parts := strings.SplitN(line, recordSeparator, 4)
	if len(parts) != 4 {
		return CompletionRecord{}, false
	}
	at, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return CompletionRecord{}, false
	}
	rec := CompletionRecord{
		Task:       TaskName(parts[1]),
		RunKey:     parts[2],
		RecordedAt: at,
	}
	if strings.Contains(parts[3], SuccessMarker) {
		rec.Success = true
	} else {
		rec.Detail = strings.TrimPrefix(parts[3], "failed: ")
	}
	return rec, true
}

// sanitizeDetail keeps failure details on one line, and keeps them from
// containing the separator or the success marker, so a wrapped error
// message cannot fake a ledger entry or a success.
func sanitizeDetail(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, recordSeparator, " / ")
	return strings.ReplaceAll(s, SuccessMarker, "completed")
}
