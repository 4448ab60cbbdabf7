package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline/meter-rollup/rollup"
	"github.com/gridline/meter-rollup/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// DEVICE REGISTRY
// =============================================================================

func TestRegisterAndGetDevice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterDevice(ctx, sqlite.Device{ID: "meter-1", Name: "Main panel"}))

	device, err := store.GetDevice(ctx, "meter-1")
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, "meter-1", device.ID)
	assert.Equal(t, "Main panel", device.Name)
	assert.False(t, device.RegisteredAt.IsZero())
}

func TestGetDevice_Unknown_ReturnsNil(t *testing.T) {
	store := newTestStore(t)

	device, err := store.GetDevice(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestRegisterDevice_DuplicateFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterDevice(ctx, sqlite.Device{ID: "meter-1", Name: "First"}))
	err := store.RegisterDevice(ctx, sqlite.Device{ID: "meter-1", Name: "Again"})
	assert.Error(t, err)

	// The original registration is untouched
	device, err := store.GetDevice(ctx, "meter-1")
	require.NoError(t, err)
	assert.Equal(t, "First", device.Name)
}

func TestListDevices_OrderedByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"meter-3", "meter-1", "meter-2"} {
		require.NoError(t, store.RegisterDevice(ctx, sqlite.Device{ID: id, Name: id}))
	}

	devices, err := store.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "meter-1", devices[0].ID)
	assert.Equal(t, "meter-3", devices[2].ID)

	ids, err := store.ListDeviceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"meter-1", "meter-2", "meter-3"}, ids)
}

// =============================================================================
// COMPLETION LEDGER
// =============================================================================

func TestLedger_NothingRecorded_NotCompleted(t *testing.T) {
	store := newTestStore(t)

	done, err := store.HasCompleted(context.Background(), rollup.TaskDailyReading, "2025-02-19")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestLedger_LatestOutcomeWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := rollup.NewRunDate(2025, time.February, 19)

	// failure then success: completed
	require.NoError(t, store.Record(ctx, rollup.Failed(rollup.TaskDailyReading, date, assert.AnError)))
	require.NoError(t, store.Record(ctx, rollup.Completed(rollup.TaskDailyReading, date)))
	done, err := store.HasCompleted(ctx, rollup.TaskDailyReading, date.Key())
	require.NoError(t, err)
	assert.True(t, done)

	// a newer failure flips it back
	require.NoError(t, store.Record(ctx, rollup.Failed(rollup.TaskDailyReading, date, assert.AnError)))
	done, err = store.HasCompleted(ctx, rollup.TaskDailyReading, date.Key())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestLedger_TasksAndRunKeysAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	feb19 := rollup.NewRunDate(2025, time.February, 19)
	feb20 := rollup.NewRunDate(2025, time.February, 20)

	require.NoError(t, store.Record(ctx, rollup.Completed(rollup.TaskDailyReading, feb19)))

	done, err := store.HasCompleted(ctx, rollup.TaskMonthlyReading, feb19.Key())
	require.NoError(t, err)
	assert.False(t, done, "other tasks unaffected")

	done, err = store.HasCompleted(ctx, rollup.TaskDailyReading, feb20.Key())
	require.NoError(t, err)
	assert.False(t, done, "other run keys unaffected")
}

func TestLedger_RecordsFiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	feb19 := rollup.NewRunDate(2025, time.February, 19)
	feb20 := rollup.NewRunDate(2025, time.February, 20)

	require.NoError(t, store.Record(ctx, rollup.Failed(rollup.TaskDailyReading, feb19, assert.AnError)))
	require.NoError(t, store.Record(ctx, rollup.Completed(rollup.TaskDailyReading, feb19)))
	require.NoError(t, store.Record(ctx, rollup.Completed(rollup.TaskDailyReading, feb20)))

	records, err := store.Records(ctx, feb19.Key())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success, "oldest first")
	assert.True(t, records[1].Success)
	assert.Equal(t, assert.AnError.Error(), records[0].Detail)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()
	date := rollup.NewRunDate(2025, time.February, 19)

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, rollup.Completed(rollup.TaskMonthlyConsumption, date)))
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	done, err := reopened.HasCompleted(ctx, rollup.TaskMonthlyConsumption, date.Key())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestStore_DrivesFullPipelineRun(t *testing.T) {
	// The sqlite ledger is a drop-in for the file ledger.
	store := newTestStore(t)
	ctx := context.Background()
	date := rollup.NewRunDate(2025, time.February, 19)

	src := rollup.SourceFunc(func(context.Context, rollup.RunDate) (rollup.Readings, error) {
		return rollup.Readings{}, nil
	})
	p := rollup.NewPipeline(src, store, t.TempDir())
	require.NoError(t, p.Run(ctx, date))

	done, err := store.HasCompleted(ctx, rollup.TaskDailyReading, date.Key())
	require.NoError(t, err)
	assert.True(t, done)
}
