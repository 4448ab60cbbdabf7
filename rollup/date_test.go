package rollup_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline/meter-rollup/rollup"
)

func TestTimeSlots_FixedHalfHourSet(t *testing.T) {
	slots := rollup.TimeSlots()

	require.Len(t, slots, 49, "every 30 minutes from 00:00 to 24:00 inclusive")
	assert.Equal(t, "00:00", slots[0])
	assert.Equal(t, "00:30", slots[1])
	assert.Equal(t, "12:00", slots[24])
	assert.Equal(t, "23:30", slots[47])
	assert.Equal(t, "24:00", slots[48])
}

func TestRunDate_Labels(t *testing.T) {
	d := rollup.NewRunDate(2025, time.February, 19)

	assert.Equal(t, "2025", d.Year())
	assert.Equal(t, "02", d.Month())
	assert.Equal(t, "19", d.Day())
	assert.Equal(t, "02-19", d.DayLabel())
	assert.Equal(t, "2025-02-19", d.Key())
}

func TestParseRunDate_RoundTrip(t *testing.T) {
	d, err := rollup.ParseRunDate("2025-02-19")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-19", d.Key())

	_, err = rollup.ParseRunDate("19/02/2025")
	assert.Error(t, err)
}

func TestLayout_ArtifactPaths(t *testing.T) {
	// The query layer reconstructs these paths independently, so the
	// naming must be reproduced exactly.
	d := rollup.NewRunDate(2025, time.February, 19)

	assert.Equal(t, filepath.Join("data", "2025", "02", "daily-reading", "02-19.csv"),
		rollup.DailyReadingPath("data", d))
	assert.Equal(t, filepath.Join("data", "2025", "02", "monthly-reading-2025-02.csv"),
		rollup.MonthlyReadingPath("data", d))
	assert.Equal(t, filepath.Join("data", "2025", "02", "daily-consumption", "02-19.csv"),
		rollup.DailyConsumptionPath("data", d))
	assert.Equal(t, filepath.Join("data", "2025", "02", "monthly-consumption-2025-02.csv"),
		rollup.MonthlyConsumptionPath("data", d))
}
