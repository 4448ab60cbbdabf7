/*
table.go - Time-slot tables (the on-disk unit of every artifact)

PURPOSE:
  A Table is the tabular shape every artifact shares: one row per device,
  a key column holding the device id, and an ordered set of value columns
  (intra-day time slots for daily tables, day labels for monthly ones).
  Cells are decimal to keep repeated 2-decimal rounding stable across
  merges; a device absent from a column simply has no cell there.

DURABILITY:
  Save is write-then-rename. A crash mid-write leaves a temp file next to
  the target, never a half-written table at the published path. Readers
  that see a file at the canonical path see final content.

IDEMPOTENT MERGE:
  MergeOrReplaceColumn outer-joins on the key column and REPLACES an
  existing column with the same label instead of duplicating it. Folding
  the same day into a monthly accumulator twice yields one column for
  that day.

SEE ALSO:
  - layout.go: Where tables live on disk
  - pipeline.go: The stages producing and consuming them
*/
package rollup

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
)

// Table is a device-keyed table with ordered value columns.
type Table struct {
	Key     string   // header of the key column, e.g. "meter_id"
	Columns []string // ordered value column labels (key excluded)

	rows map[string]map[string]decimal.Decimal
}

// NewTable creates an empty table with the given key header and columns.
func NewTable(key string, columns ...string) *Table {
	return &Table{
		Key:     key,
		Columns: append([]string(nil), columns...),
		rows:    make(map[string]map[string]decimal.Decimal),
	}
}

// AddDevice ensures a row exists for the device, even with no cells yet.
func (t *Table) AddDevice(device string) {
	if _, ok := t.rows[device]; !ok {
		t.rows[device] = make(map[string]decimal.Decimal)
	}
}

// Set stores a cell. The device row is created on first write.
func (t *Table) Set(device, column string, v decimal.Decimal) {
	row, ok := t.rows[device]
	if !ok {
		row = make(map[string]decimal.Decimal)
		t.rows[device] = row
	}
	row[column] = v
}

// Get returns a cell value and whether the cell is present.
func (t *Table) Get(device, column string) (decimal.Decimal, bool) {
	v, ok := t.rows[device][column]
	return v, ok
}

// Devices returns all row keys in sorted order.
func (t *Table) Devices() []string {
	devices := make([]string, 0, len(t.rows))
	for d := range t.rows {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices
}

// HasColumn reports whether a value column with this label exists.
func (t *Table) HasColumn(label string) bool {
	for _, c := range t.Columns {
		if c == label {
			return true
		}
	}
	return false
}

// Column extracts one column as a device-to-value map.
func (t *Table) Column(label string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for device, row := range t.rows {
		if v, ok := row[label]; ok {
			out[device] = v
		}
	}
	return out
}

// =============================================================================
// MERGE - Idempotent column fold for the monthly accumulators
// =============================================================================

// MergeOrReplaceColumn folds one labeled column into base, outer-joining on
// the device key. A nil base starts a fresh table (first day of the month).
// If base already has a column with this label, the old column is dropped
// first: re-processing a date replaces its values, never appends a
// duplicate. The replaced column moves to the end of the column order.
func MergeOrReplaceColumn(base *Table, key, label string, values map[string]decimal.Decimal) *Table {
	merged := NewTable(key)

	if base != nil {
		for _, c := range base.Columns {
			if c == label {
				continue // replace, not duplicate
			}
			merged.Columns = append(merged.Columns, c)
			for device, v := range base.Column(c) {
				merged.Set(device, c, v)
			}
		}
	}

	merged.Columns = append(merged.Columns, label)
	for device, v := range values {
		merged.Set(device, label, v)
	}
	return merged
}

// =============================================================================
// PERSISTENCE - CSV load and atomic save
// =============================================================================

// Load reads a table from path. Returns ErrTableNotFound if no file exists.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrTableNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, ErrPersistence)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, ErrPersistence)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("read %s: empty header: %w", path, ErrPersistence)
	}

	header := records[0]
	table := NewTable(header[0], header[1:]...)
	for _, rec := range records[1:] {
		device := rec[0]
		if _, ok := table.rows[device]; !ok {
			table.rows[device] = make(map[string]decimal.Decimal)
		}
		for i := 1; i < len(rec) && i < len(header); i++ {
			if rec[i] == "" {
				continue // absent cell
			}
			v, err := decimal.NewFromString(rec[i])
			if err != nil {
				return nil, fmt.Errorf("read %s: bad cell %s/%s: %w", path, device, header[i], ErrPersistence)
			}
			table.rows[device][header[i]] = v
		}
	}
	return table, nil
}

// Save writes the table at path atomically: the content is written to a
// temp file in the same directory, fsynced, then renamed over the target.
// All cells are rounded to 2 decimal places on the way out.
func (t *Table) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %v: %w", dir, err, ErrPersistence)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %v: %w", path, err, ErrPersistence)
	}
	defer os.Remove(tmp.Name()) // no-op after successful rename

	w := csv.NewWriter(tmp)
	header := append([]string{t.Key}, t.Columns...)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %v: %w", path, err, ErrPersistence)
	}
	for _, device := range t.Devices() {
		rec := make([]string, 0, len(header))
		rec = append(rec, device)
		for _, c := range t.Columns {
			if v, ok := t.rows[device][c]; ok {
				rec = append(rec, v.Round(2).StringFixed(2))
			} else {
				rec = append(rec, "")
			}
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %v: %w", path, err, ErrPersistence)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %v: %w", path, err, ErrPersistence)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %v: %w", path, err, ErrPersistence)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %v: %w", path, err, ErrPersistence)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %v: %w", path, err, ErrPersistence)
	}
	return nil
}
