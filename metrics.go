package cullthrottle

import "time"

// metricsRing is a small ring buffer of rolling per-frame samples,
// grounded on the teacher's Profiler (voxel_rt_profiler.go), which
// accumulates several named durations per subsystem rather than a single
// aggregate. Here the aggregation is a rolling mean over the configured
// window instead of a per-frame reset, since DynamicDistance needs to see
// a trend rather than one frame's sample.
type metricsRing struct {
	window int

	skippedSearch []int
	skippedIngest []int
	objectDelta   []float64
	filled        int
	next          int

	lastSearchDuration time.Duration
	lastIngestDuration time.Duration
}

func newMetricsRing(window int) *metricsRing {
	if window < 1 {
		window = 1
	}
	return &metricsRing{
		window:        window,
		skippedSearch: make([]int, window),
		skippedIngest: make([]int, window),
		objectDelta:   make([]float64, window),
	}
}

// recordFrame appends one frame's samples, overwriting the oldest entry
// once the ring is full.
func (m *metricsRing) recordFrame(skippedSearch, skippedIngest int, avgObjectDelta float64, searchDuration, ingestDuration time.Duration) {
	m.skippedSearch[m.next] = skippedSearch
	m.skippedIngest[m.next] = skippedIngest
	m.objectDelta[m.next] = avgObjectDelta
	m.next = (m.next + 1) % m.window
	if m.filled < m.window {
		m.filled++
	}
	m.lastSearchDuration = searchDuration
	m.lastIngestDuration = ingestDuration
}

func meanInt(vals []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < n; i++ {
		sum += vals[i]
	}
	return float64(sum) / float64(n)
}

func meanFloat(vals []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += vals[i]
	}
	return sum / float64(n)
}

func (m *metricsRing) avgSkippedSearch() float64 { return meanInt(m.skippedSearch, m.filled) }
func (m *metricsRing) avgSkippedIngest() float64 { return meanInt(m.skippedIngest, m.filled) }
func (m *metricsRing) avgObjectDelta() float64   { return meanFloat(m.objectDelta, m.filled) }

// MetricsSnapshot is a point-in-time copy of the scheduler's rolling
// metrics and current render distance, readable without touching
// scheduler internals — the same shape as the teacher's read-only Camera
// getters alongside its setters.
type MetricsSnapshot struct {
	AvgSkippedSearch   float64
	AvgSkippedIngest   float64
	AvgObjectDelta     float64
	LastSearchDuration time.Duration
	LastIngestDuration time.Duration
	RenderDistance     float32
}

// Metrics returns a snapshot of the scheduler's current rolling metrics.
func (s *Scheduler) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		AvgSkippedSearch:   s.metricsRing.avgSkippedSearch(),
		AvgSkippedIngest:   s.metricsRing.avgSkippedIngest(),
		AvgObjectDelta:     s.metricsRing.avgObjectDelta(),
		LastSearchDuration: s.metricsRing.lastSearchDuration,
		LastIngestDuration: s.metricsRing.lastIngestDuration,
		RenderDistance:     s.distance.renderDistance,
	}
}

// dynamicDistanceController implements spec.md §4.7: renderDistance is
// held between renderDistanceTarget/3 and renderDistanceTarget*5, nudged
// each frame toward the bound that matches current load. Grounded in
// shape on the teacher's sleep/wake threshold state machine (physics.go's
// RigidBodyComponent.IdleTime vs SleepThreshold): a single accumulating
// signal compared against thresholds to decide a state transition, here
// "reduce/increase/hold" instead of "sleep/wake".
type dynamicDistanceController struct {
	renderDistance float32
	target         float32
}

func newDynamicDistanceController(target float32) *dynamicDistanceController {
	return &dynamicDistanceController{renderDistance: target, target: target}
}

func (d *dynamicDistanceController) reset(target float32) {
	d.target = target
	d.renderDistance = target
}

func (d *dynamicDistanceController) bounds() (min, max float32) {
	return d.target / 3, d.target * 5
}

func (d *dynamicDistanceController) update(
	avgSkippedIngest, avgSkippedSearch, avgObjectDelta float64,
	refreshRateMidpoint, bestRefreshRate time.Duration,
	searchDuration, searchBudget, ingestDuration, ingestBudget time.Duration,
) {
	avgObjectDeltaDur := time.Duration(avgObjectDelta * float64(time.Second))

	switch {
	case avgSkippedIngest > 0 ||
		avgSkippedSearch > 0 ||
		avgObjectDeltaDur >= refreshRateMidpoint ||
		searchDuration > searchBudget ||
		ingestDuration > ingestBudget:
		d.renderDistance -= 0.03 * d.target
	case avgObjectDeltaDur <= bestRefreshRate:
		d.renderDistance += 0.015 * d.target
	}

	min, max := d.bounds()
	if d.renderDistance < min {
		d.renderDistance = min
	}
	if d.renderDistance > max {
		d.renderDistance = max
	}
}
