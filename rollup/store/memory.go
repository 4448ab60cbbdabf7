// Package store provides CompletionLedger implementations.
package store

import (
	"context"
	"sync"

	"github.com/gridline/meter-rollup/rollup"
)

// =============================================================================
// MEMORY LEDGER - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is an in-process CompletionLedger. Entries survive nothing, so
// it is only suitable for tests and throwaway runs.
type Memory struct {
	mu      sync.RWMutex
	records []rollup.CompletionRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, rec rollup.CompletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// HasCompleted applies the latest-outcome-wins rule over the append order.
func (m *Memory) HasCompleted(_ context.Context, task rollup.TaskName, runKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	completed := false
	for _, rec := range m.records {
		if rec.Task == task && rec.RunKey == runKey {
			completed = rec.Success
		}
	}
	return completed, nil
}

func (m *Memory) Records(_ context.Context, runKey string) ([]rollup.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []rollup.CompletionRecord
	for _, rec := range m.records {
		if rec.RunKey == runKey {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ rollup.CompletionLedger = (*Memory)(nil)
