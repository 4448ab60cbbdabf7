/*
Package sqlite provides the SQLite-backed storage for the rollup service.

PURPOSE:
  Two concerns share one database file:

  devices:           The registry of meters the service knows about. The
                     simulator feed and the dashboard API both read it.
  completion_events: An append-only table of task outcomes implementing
                     rollup.CompletionLedger, for deployments that prefer
                     a queryable ledger over the line file.

APPEND-ONLY ENFORCEMENT:
  completion_events has no UPDATE or DELETE path. Status is derived by
  reading the newest row per (task, run_key).

WAL MODE:
  The database is opened with WAL so ledger reads during a fan-out do not
  block the writer.

USAGE:
  store, err := sqlite.New("./meters.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - rollup/ledger.go: Ledger contract and the line-file implementation
  - rollup/store/memory.go: In-memory ledger for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridline/meter-rollup/rollup"
)

// Store implements the device registry and rollup.CompletionLedger.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Device registry
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		registered_at TEXT NOT NULL
	);

	-- Completion events (append-only ledger)
	CREATE TABLE IF NOT EXISTS completion_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		task TEXT NOT NULL,
		run_key TEXT NOT NULL,
		success INTEGER NOT NULL,
		detail TEXT,
		recorded_at TEXT NOT NULL
	);

	-- Latest-outcome lookup (hot path for recovery)
	CREATE INDEX IF NOT EXISTS idx_completion_task_key
		ON completion_events(task, run_key, seq DESC);

	CREATE INDEX IF NOT EXISTS idx_completion_run_key
		ON completion_events(run_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DEVICE REGISTRY
// =============================================================================

// Device is a registered meter.
type Device struct {
	ID           string
	Name         string
	RegisteredAt time.Time
}

// RegisterDevice inserts a device. Registering an existing id fails.
func (s *Store) RegisterDevice(ctx context.Context, d Device) error {
	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (id, name, registered_at) VALUES (?, ?, ?)`,
		d.ID, d.Name, d.RegisteredAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("register device %s: %w", d.ID, err)
	}
	return nil
}

// GetDevice returns a device, or nil if it is not registered.
func (s *Store) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, registered_at FROM devices WHERE id = ?`, id)

	var d Device
	var registeredAt string
	if err := row.Scan(&d.ID, &d.Name, &registeredAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get device %s: %w", id, err)
	}
	d.RegisteredAt, _ = time.Parse(time.RFC3339, registeredAt)
	return &d, nil
}

// ListDevices returns all devices ordered by id.
func (s *Store) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, registered_at FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		var registeredAt string
		if err := rows.Scan(&d.ID, &d.Name, &registeredAt); err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		d.RegisteredAt, _ = time.Parse(time.RFC3339, registeredAt)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// ListDeviceIDs returns just the registered meter ids, for the feed.
func (s *Store) ListDeviceIDs(ctx context.Context) ([]string, error) {
	devices, err := s.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.ID
	}
	return ids, nil
}

// =============================================================================
// COMPLETION LEDGER
// =============================================================================

// Record appends a completion event.
func (s *Store) Record(ctx context.Context, rec rollup.CompletionRecord) error {
	at := rec.RecordedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completion_events (task, run_key, success, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(rec.Task), rec.RunKey, boolToInt(rec.Success), rec.Detail, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("%v: %w", err, rollup.ErrLedgerUnavailable)
	}
	return nil
}

// HasCompleted reads the newest event for (task, runKey).
func (s *Store) HasCompleted(ctx context.Context, task rollup.TaskName, runKey string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT success FROM completion_events
		 WHERE task = ? AND run_key = ?
		 ORDER BY seq DESC LIMIT 1`,
		string(task), runKey)

	var success int
	if err := row.Scan(&success); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("%v: %w", err, rollup.ErrLedgerUnavailable)
	}
	return success != 0, nil
}

// Records returns all events for a run key, oldest first.
func (s *Store) Records(ctx context.Context, runKey string) ([]rollup.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task, run_key, success, detail, recorded_at FROM completion_events
		 WHERE run_key = ? ORDER BY seq`, runKey)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, rollup.ErrLedgerUnavailable)
	}
	defer rows.Close()

	var records []rollup.CompletionRecord
	for rows.Next() {
		var rec rollup.CompletionRecord
		var task, recordedAt string
		var success int
		if err := rows.Scan(&task, &rec.RunKey, &success, &rec.Detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("%v: %w", err, rollup.ErrLedgerUnavailable)
		}
		rec.Task = rollup.TaskName(task)
		rec.Success = success != 0
		rec.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ rollup.CompletionLedger = (*Store)(nil)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
