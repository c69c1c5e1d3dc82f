package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator() *UsageAggregator {
	return NewUsageAggregator(UsageConfig{MaxGap: 30 * time.Second, Location: time.UTC})
}

func TestUsageIntegratesHeldPower(t *testing.T) {
	ua := newTestAggregator()
	t0 := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	usage := ua.Update("s1", t0, []float64{1000, 0, 500})
	assert.Equal(t, []float64{0, 0, 0}, usage.Day)

	usage = ua.Update("s1", t0.Add(18*time.Second), []float64{0, 0, 500})
	// 1 kW for 18 s = 0.005 kWh, 0.5 kW for 18 s = 0.0025 kWh
	assert.InDelta(t, 0.005, usage.Day[0], 1e-12)
	assert.InDelta(t, 0.0025, usage.Day[2], 1e-12)
	assert.Equal(t, usage.Day, usage.Week)
	assert.Equal(t, usage.Day, usage.Month)

	usage = ua.Update("s1", t0.Add(36*time.Second), []float64{0, 0, 500})
	assert.InDelta(t, 0.005, usage.Day[0], 1e-12, "slot 0 was off for the last interval")
	assert.InDelta(t, 0.005, usage.Day[2], 1e-12)
}

func TestUsageSkipsLongGaps(t *testing.T) {
	ua := newTestAggregator()
	t0 := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	ua.Update("s1", t0, []float64{1000, 0})
	usage := ua.Update("s1", t0.Add(time.Hour), []float64{1000, 0})
	assert.Equal(t, []float64{0, 0}, usage.Day)

	usage = ua.Update("s1", t0.Add(time.Hour+3600*time.Millisecond), []float64{1000, 0})
	assert.InDelta(t, 0.001, usage.Day[0], 1e-12)
}

func TestUsageRollsOverPeriods(t *testing.T) {
	ua := newTestAggregator()
	// Sunday 2024-03-31 is the last day of ISO week 13 and of March.
	t0 := time.Date(2024, 3, 31, 23, 59, 24, 0, time.UTC)

	ua.Update("s1", t0, []float64{1000})
	usage := ua.Update("s1", t0.Add(18*time.Second), []float64{1000})
	require.InDelta(t, 0.005, usage.Day[0], 1e-12)

	usage = ua.Update("s1", t0.Add(36*time.Second), []float64{1000})
	assert.InDelta(t, 0.005, usage.Day[0], 1e-12)
	assert.InDelta(t, 0.005, usage.Week[0], 1e-12)
	assert.InDelta(t, 0.005, usage.Month[0], 1e-12)

	// Next day of the same ISO week and month.
	ua2 := newTestAggregator()
	t1 := time.Date(2024, 4, 2, 23, 59, 24, 0, time.UTC)
	ua2.Update("s1", t1, []float64{1000})
	ua2.Update("s1", t1.Add(18*time.Second), []float64{1000})
	usage = ua2.Update("s1", t1.Add(36*time.Second), []float64{1000})
	assert.InDelta(t, 0.005, usage.Day[0], 1e-12)
	assert.InDelta(t, 0.01, usage.Week[0], 1e-12)
	assert.InDelta(t, 0.01, usage.Month[0], 1e-12)
}

func TestUsagePerSensor(t *testing.T) {
	ua := newTestAggregator()
	t0 := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	ua.Update("b", t0, []float64{1})
	ua.Update("a", t0, []float64{1, 2})

	assert.Equal(t, []string{"a", "b"}, ua.GetAllSensors())

	usage, ok := ua.GetUsage("a")
	require.True(t, ok)
	assert.Len(t, usage.Day, 2)

	_, ok = ua.GetUsage("missing")
	assert.False(t, ok)

	usage = ua.Update("a", t0.Add(time.Second), []float64{1, 2, 3})
	assert.Equal(t, []float64{0, 0, 0}, usage.Month, "a new slot count restarts totals")
}
