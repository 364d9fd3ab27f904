package cullthrottle

import (
	"fmt"
	"time"
)

// Config holds every tunable governing voxel size, budgets, refresh rates
// and feature toggles. Zero value is not valid; use DefaultConfig and
// adjust via the Scheduler's validated Set* methods. Setters whose field
// feeds derived state (voxel size, render distance target) re-derive that
// state immediately after assignment.
type Config struct {
	VoxelSize float32

	RenderDistanceTarget float32

	SearchTimeBudget time.Duration
	IngestTimeBudget time.Duration
	UpdateTimeBudget time.Duration

	BestRefreshRate  time.Duration
	WorstRefreshRate time.Duration

	ComputeVisibilityOnlyOnDemand    bool
	StrictlyEnforceWorstRefreshRate  bool
	DynamicRenderDistance            bool

	// MetricsWindow is the rolling-average depth (in frames) for the
	// skipped-search/skipped-ingest/object-delta metrics. Defaults to 4,
	// the value spec.md's legacy draft uses.
	MetricsWindow int

	GraceWindow time.Duration
}

// DefaultConfig returns sane defaults matching spec.md's stated figures:
// searchTimeBudget ~0.8ms, a 175ms grace window, and a 4-frame metrics
// window. The voxel-update and physics-poll budgets are a fixed 50µs each
// and are not part of Config.
func DefaultConfig() Config {
	return Config{
		VoxelSize:                       10,
		RenderDistanceTarget:            300,
		SearchTimeBudget:                800 * time.Microsecond,
		IngestTimeBudget:                1500 * time.Microsecond,
		UpdateTimeBudget:                500 * time.Microsecond,
		BestRefreshRate:                 time.Second / 60,
		WorstRefreshRate:                time.Second / 5,
		ComputeVisibilityOnlyOnDemand:   false,
		StrictlyEnforceWorstRefreshRate: false,
		DynamicRenderDistance:           true,
		MetricsWindow:                   4,
		GraceWindow:                     175 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.VoxelSize <= 0 {
		return fmt.Errorf("cullthrottle: voxel size must be positive, got %v", c.VoxelSize)
	}
	if c.RenderDistanceTarget <= 0 {
		return fmt.Errorf("cullthrottle: render distance target must be positive, got %v", c.RenderDistanceTarget)
	}
	if c.SearchTimeBudget < 0 || c.IngestTimeBudget < 0 || c.UpdateTimeBudget < 0 {
		return fmt.Errorf("cullthrottle: time budgets must be non-negative")
	}
	if c.BestRefreshRate <= 0 || c.WorstRefreshRate <= 0 {
		return fmt.Errorf("cullthrottle: refresh rates must be positive")
	}
	if c.BestRefreshRate > c.WorstRefreshRate {
		return fmt.Errorf("cullthrottle: best refresh rate (%v) must not exceed worst (%v)", c.BestRefreshRate, c.WorstRefreshRate)
	}
	if c.MetricsWindow < 1 {
		return fmt.Errorf("cullthrottle: metrics window must be >= 1, got %d", c.MetricsWindow)
	}
	return nil
}

// SetVoxelSize validates and applies a new voxel size, rebuilding the
// grid in place (every object is re-registered against the new grid).
func (s *Scheduler) SetVoxelSize(size float32) error {
	if size <= 0 {
		return fmt.Errorf("cullthrottle: voxel size must be positive, got %v", size)
	}
	s.config.VoxelSize = size
	s.rebuildGrid()
	return nil
}

// SetRenderDistanceTarget validates and applies a new render-distance
// target, resetting DynamicDistance's clamp bounds around it.
func (s *Scheduler) SetRenderDistanceTarget(target float32) error {
	if target <= 0 {
		return fmt.Errorf("cullthrottle: render distance target must be positive, got %v", target)
	}
	s.config.RenderDistanceTarget = target
	s.distance.reset(target)
	return nil
}

// SetTimeBudgets validates and applies the search/ingest/update time
// budgets, each given in seconds to mirror spec.md's external interface.
func (s *Scheduler) SetTimeBudgets(searchSeconds, ingestSeconds, updateSeconds float64) error {
	if searchSeconds < 0 || ingestSeconds < 0 || updateSeconds < 0 {
		return fmt.Errorf("cullthrottle: time budgets must be non-negative")
	}
	s.config.SearchTimeBudget = time.Duration(searchSeconds * float64(time.Second))
	s.config.IngestTimeBudget = time.Duration(ingestSeconds * float64(time.Second))
	s.config.UpdateTimeBudget = time.Duration(updateSeconds * float64(time.Second))
	return nil
}

// SetRefreshRates validates and applies best/worst refresh rates. Values
// greater than 2 are interpreted as Hz and inverted into a period, per
// spec.md §6 (anything at or below 2 is already a period in seconds).
func (s *Scheduler) SetRefreshRates(best, worst float64) error {
	if best <= 0 || worst <= 0 {
		return fmt.Errorf("cullthrottle: refresh rates must be positive")
	}
	bestPeriod := best
	if best > 2 {
		bestPeriod = 1 / best
	}
	worstPeriod := worst
	if worst > 2 {
		worstPeriod = 1 / worst
	}
	if bestPeriod > worstPeriod {
		return fmt.Errorf("cullthrottle: best refresh period (%v) must not exceed worst (%v)", bestPeriod, worstPeriod)
	}
	s.config.BestRefreshRate = time.Duration(bestPeriod * float64(time.Second))
	s.config.WorstRefreshRate = time.Duration(worstPeriod * float64(time.Second))
	return nil
}

// SetComputeVisibilityOnlyOnDemand toggles the lazy-execution mode
// described in spec.md §4.6: when enabled and no visibility listener is
// attached, the scheduler's per-frame steps are skipped until the first
// call to GetVisibleObjects/IterateObjectsToUpdate.
func (s *Scheduler) SetComputeVisibilityOnlyOnDemand(enabled bool) {
	s.config.ComputeVisibilityOnlyOnDemand = enabled
}

// SetStrictlyEnforceWorstRefreshRate toggles whether p0-tier objects get
// an effectively unbounded update budget.
func (s *Scheduler) SetStrictlyEnforceWorstRefreshRate(enabled bool) {
	s.config.StrictlyEnforceWorstRefreshRate = enabled
}

// SetDynamicRenderDistance toggles the DynamicDistance controller.
func (s *Scheduler) SetDynamicRenderDistance(enabled bool) {
	s.config.DynamicRenderDistance = enabled
}
