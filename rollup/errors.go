/*
errors.go - Centralized error taxonomy for the rollup pipeline

PURPOSE:
  All pipeline error categories in one place. Stages wrap these sentinels
  with context; the runner and the API layer classify failures with
  errors.Is instead of string matching.

CATEGORIES:
  1. Upstream errors     - The meter feed could not be fetched or decoded
  2. Precondition errors - An expected file or column is absent
  3. Persistence errors  - A table could not be written or renamed
  4. Ledger errors       - The completion ledger is unreadable

SEE ALSO:
  - pipeline.go: Where these are returned
  - ledger.go: LedgerUnavailable semantics (fail toward re-running)
*/
package rollup

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUpstreamFetch is returned when the reading source fails or returns
	// a malformed payload. The day's file is left untouched.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrMissingPrecondition is returned when an input a stage depends on
	// (the daily reading file, or a required slot column) does not exist.
	ErrMissingPrecondition = errors.New("missing precondition")

	// ErrPersistence is returned when a table cannot be durably written.
	ErrPersistence = errors.New("persistence failed")

	// ErrLedgerUnavailable is returned when the completion ledger cannot be
	// read or appended. Readers must treat this as "not completed".
	ErrLedgerUnavailable = errors.New("completion ledger unavailable")

	// ErrTableNotFound is returned by Load when no table exists at the path.
	ErrTableNotFound = errors.New("table not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingColumnError reports a required slot column absent from a table.
type MissingColumnError struct {
	Path   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not found in %s", e.Column, e.Path)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingPrecondition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsMissingPrecondition reports whether err is a missing file or column.
// These failures resolve themselves once ingestion succeeds, so callers
// log them and rely on the next run's recovery instead of retrying.
func IsMissingPrecondition(err error) bool {
	return errors.Is(err, ErrMissingPrecondition) || errors.Is(err, ErrTableNotFound)
}
