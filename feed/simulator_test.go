package feed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline/meter-rollup/feed"
	"github.com/gridline/meter-rollup/rollup"
)

func TestSimulator_CoversEverySlotForEveryDevice(t *testing.T) {
	sim := feed.NewSimulator(feed.StaticDevices{"meter-1", "meter-2"}, 42)
	date := rollup.NewRunDate(2025, time.February, 19)

	readings, err := sim.Fetch(context.Background(), date)
	require.NoError(t, err)

	require.Len(t, readings, 2)
	for device, series := range readings {
		assert.Len(t, series, len(rollup.TimeSlots()), "device %s", device)
		for _, slot := range rollup.TimeSlots() {
			_, ok := series[slot]
			assert.True(t, ok, "device %s missing slot %s", device, slot)
		}
	}
}

func TestSimulator_ReadingsAreCumulative(t *testing.T) {
	sim := feed.NewSimulator(feed.StaticDevices{"meter-1"}, 42)
	date := rollup.NewRunDate(2025, time.February, 19)

	readings, err := sim.Fetch(context.Background(), date)
	require.NoError(t, err)

	series := readings["meter-1"]
	slots := rollup.TimeSlots()
	for i := 1; i < len(slots); i++ {
		prev, curr := series[slots[i-1]], series[slots[i]]
		assert.True(t, curr.GreaterThan(prev),
			"reading must increase every slot: %s=%s, %s=%s",
			slots[i-1], prev, slots[i], curr)
	}
}

func TestSimulator_RefetchingADateReturnsIdenticalData(t *testing.T) {
	// Recovery re-fetches the same date; the simulator must not invent a
	// different day.
	sim := feed.NewSimulator(feed.StaticDevices{"meter-1"}, 42)
	date := rollup.NewRunDate(2025, time.February, 19)
	ctx := context.Background()

	first, err := sim.Fetch(ctx, date)
	require.NoError(t, err)
	second, err := sim.Fetch(ctx, date)
	require.NoError(t, err)

	for slot, v := range first["meter-1"] {
		assert.True(t, v.Equal(second["meter-1"][slot]), "slot %s changed on re-fetch", slot)
	}
}

func TestSimulator_CumulativeCarriesAcrossDays(t *testing.T) {
	// A meter's counter never resets: day two starts where day one ended.
	sim := feed.NewSimulator(feed.StaticDevices{"meter-1"}, 42)
	ctx := context.Background()

	day1, err := sim.Fetch(ctx, rollup.NewRunDate(2025, time.February, 19))
	require.NoError(t, err)
	day2, err := sim.Fetch(ctx, rollup.NewRunDate(2025, time.February, 20))
	require.NoError(t, err)

	endOfDay1 := day1["meter-1"][rollup.SlotEndOfDay]
	startOfDay2 := day2["meter-1"][rollup.SlotStartOfDay]
	assert.True(t, startOfDay2.Equal(endOfDay1),
		"day 2 opens at %s, day 1 closed at %s", startOfDay2, endOfDay1)
}

type failingLister struct{}

func (failingLister) ListDeviceIDs(context.Context) ([]string, error) {
	return nil, errors.New("registry down")
}

func TestSimulator_DeviceListFailure_IsUpstreamFetch(t *testing.T) {
	sim := feed.NewSimulator(failingLister{}, 42)

	_, err := sim.Fetch(context.Background(), rollup.NewRunDate(2025, time.February, 19))

	assert.ErrorIs(t, err, rollup.ErrUpstreamFetch)
}
