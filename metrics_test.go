package cullthrottle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRingRollingAverage(t *testing.T) {
	ring := newMetricsRing(3)
	ring.recordFrame(1, 2, 0.01, time.Millisecond, time.Millisecond)
	ring.recordFrame(3, 4, 0.02, time.Millisecond, time.Millisecond)
	ring.recordFrame(5, 6, 0.03, time.Millisecond, time.Millisecond)

	assert.InDelta(t, 3.0, ring.avgSkippedSearch(), 1e-9)
	assert.InDelta(t, 4.0, ring.avgSkippedIngest(), 1e-9)
	assert.InDelta(t, 0.02, ring.avgObjectDelta(), 1e-9)
}

func TestMetricsRingOverwritesOldestEntry(t *testing.T) {
	ring := newMetricsRing(2)
	ring.recordFrame(10, 0, 0, 0, 0)
	ring.recordFrame(20, 0, 0, 0, 0)
	ring.recordFrame(30, 0, 0, 0, 0)

	assert.InDelta(t, 25.0, ring.avgSkippedSearch(), 1e-9, "the oldest sample (10) must have been evicted")
}

func TestMetricsRingWindowClampedToOne(t *testing.T) {
	ring := newMetricsRing(0)
	require.Equal(t, 1, ring.window)
}

func TestDynamicDistanceReducesUnderOverload(t *testing.T) {
	d := newDynamicDistanceController(300)
	best := 16 * time.Millisecond
	mid := 50 * time.Millisecond

	d.update(1, 0, 0.01, mid, best, 0, time.Millisecond, 0, time.Millisecond)
	assert.InDelta(t, 300-0.03*300, d.renderDistance, 1e-6)
}

func TestDynamicDistanceIncreasesWhenComfortablyWithinBudget(t *testing.T) {
	d := newDynamicDistanceController(300)
	best := 16 * time.Millisecond
	mid := 50 * time.Millisecond

	d.update(0, 0, 0.01, mid, best, 0, time.Millisecond, 0, time.Millisecond)
	assert.InDelta(t, 300+0.015*300, d.renderDistance, 1e-6)
}

func TestDynamicDistanceHoldsWhenNeitherSignalFires(t *testing.T) {
	d := newDynamicDistanceController(300)
	best := 16 * time.Millisecond
	mid := 50 * time.Millisecond

	// avgObjectDelta between best and mid: neither the reduce nor the
	// increase branch applies.
	d.update(0, 0, 0.03, mid, best, 0, time.Millisecond, 0, time.Millisecond)
	assert.InDelta(t, 300, d.renderDistance, 1e-6)
}

func TestDynamicDistanceClampsToLowerBound(t *testing.T) {
	d := newDynamicDistanceController(300)
	d.renderDistance = 101
	best := 16 * time.Millisecond
	mid := 50 * time.Millisecond

	for i := 0; i < 10; i++ {
		d.update(1, 0, 0.1, mid, best, 0, time.Millisecond, 0, time.Millisecond)
	}
	min, _ := d.bounds()
	assert.GreaterOrEqual(t, d.renderDistance, min)
}

func TestDynamicDistanceClampsToUpperBound(t *testing.T) {
	d := newDynamicDistanceController(300)
	best := 16 * time.Millisecond
	mid := 50 * time.Millisecond

	for i := 0; i < 200; i++ {
		d.update(0, 0, 0.001, mid, best, 0, time.Millisecond, 0, time.Millisecond)
	}
	_, max := d.bounds()
	assert.LessOrEqual(t, d.renderDistance, max)
}
