// Package cullthrottle schedules per-frame visibility culling and update
// throttling for large populations of spatially located objects. Each
// frame it determines which voxels of a sparse spatial grid fall inside
// the camera's view frustum, prices every object in those voxels by a
// screen-size/elapsed-time/distance formula, and hands the caller a
// time-budgeted stream of objects to update in priority order.
package cullthrottle

import (
	"iter"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/cullthrottle/frustum"
	"github.com/gekko3d/cullthrottle/pqueue"
	"github.com/gekko3d/cullthrottle/registry"
	"github.com/gekko3d/cullthrottle/voxel"
)

// CameraSource is the external collaborator supplying the current view:
// pose, vertical field of view in degrees, and viewport aspect ratio
// (width/height). cullthrottle never owns a camera or a window.
type CameraSource interface {
	Position() mgl32.Vec3
	Orientation() mgl32.Quat
	FOVDegrees() float32
	Aspect() float32
}

// UpdateItem is one yield of IterateObjectsToUpdate: the registered
// object, how long it's been since its last update, and its current
// distance from the camera.
type UpdateItem struct {
	Object          any
	ObjectDeltaTime time.Duration
	Distance        float32
}

// Scheduler is the core of the package: it owns the voxel grid, the
// object registry, the visibility cache, and the visible-objects priority
// queue, and runs the per-frame sequence spec.md §4.6 describes.
type Scheduler struct {
	config Config
	logger Logger
	camera CameraSource

	grid *voxel.Grid
	reg  *registry.Registry

	visibleQueue *pqueue.PriorityQueue
	cache        *frustum.Cache

	clock Clock
	rng   *rand.Rand

	distance    *dynamicDistanceController
	metricsRing *metricsRing

	events events

	visibleNow map[registry.Handle]time.Time

	ranThisFrame      bool
	iteratedThisFrame bool

	pendingObjectDeltaSum   float64
	pendingObjectDeltaCount int

	lastShrink time.Time
}

// New builds a Scheduler around camera and adapters, applying config
// (use DefaultConfig() as a starting point). Returns an error if config
// fails validation.
func New(camera CameraSource, adapters map[registry.Kind]registry.DimensionAdapter, config Config) (*Scheduler, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	grid := voxel.New(config.VoxelSize)
	s := &Scheduler{
		config:       config,
		logger:       NewNopLogger(),
		camera:       camera,
		grid:         grid,
		reg:          registry.New(grid, config.VoxelSize, adapters),
		visibleQueue: pqueue.New(),
		cache:        frustum.NewCache(),
		clock:        NewRealClock(),
		rng:          rand.New(rand.NewSource(1)),
		distance:     newDynamicDistanceController(config.RenderDistanceTarget),
		metricsRing:  newMetricsRing(config.MetricsWindow),
		visibleNow:   make(map[registry.Handle]time.Time),
	}
	return s, nil
}

// SetClock overrides the monotonic clock the scheduler reads, for tests
// that need a deterministic timeline.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// SetRNG overrides the PRNG used for octant/split shuffling and grace-
// window jitter, for tests that need reproducible search order (per
// spec.md §9's "deterministic-seed PRNG" design note).
func (s *Scheduler) SetRNG(rng *rand.Rand) { s.rng = rng }

// AddObject registers obj, trying every configured DimensionAdapter until
// one categorizes and resolves a pose/bounds pair for it. Returns
// ErrNotAddable if none can.
func (s *Scheduler) AddObject(obj any) (registry.Handle, error) {
	handle, err := s.reg.AddAny(obj)
	if err != nil {
		return 0, err
	}
	s.fireAdded(obj)
	return handle, nil
}

// AddPhysicsObject registers obj the same way AddObject does, and also
// enrolls it in the round-robin physics poll, since physics-driven motion
// doesn't reliably fire pose-change observers.
func (s *Scheduler) AddPhysicsObject(obj any) (registry.Handle, error) {
	handle, err := s.reg.AddPhysicsAny(obj)
	if err != nil {
		return 0, err
	}
	s.fireAdded(obj)
	return handle, nil
}

// RemoveObject unregisters handle and drops it from the visible queue's
// heap. Safe to call mid-frame; an entry for handle still staged in the
// incoming batch finds no record when dequeued and is skipped.
func (s *Scheduler) RemoveObject(handle registry.Handle) {
	rec, ok := s.reg.Record(handle)
	if !ok {
		return
	}
	obj := rec.Obj
	s.reg.Remove(handle)
	delete(s.visibleNow, handle)
	s.visibleQueue.Remove(pqueue.Handle(handle))
	s.fireRemoved(obj)
}

// Tick runs once per rendered frame, before rendering begins. If
// computeVisibilityOnlyOnDemand is enabled and no visibility listener is
// attached, the frame's work is deferred until the first call to
// GetVisibleObjects or IterateObjectsToUpdate.
func (s *Scheduler) Tick() {
	s.ranThisFrame = false
	s.iteratedThisFrame = false

	if s.config.ComputeVisibilityOnlyOnDemand && !s.hasVisibilityListener() {
		return
	}
	s.runFrame()
}

// ensureFrameRan runs the frame's work if Tick deferred it (on-demand
// mode with no listener), or if Tick was never called. A no-op once the
// frame has already run.
func (s *Scheduler) ensureFrameRan() {
	if s.ranThisFrame {
		return
	}
	s.runFrame()
}

func (s *Scheduler) runFrame() {
	now := s.clock.Now()

	microDeadline := now.Add(50 * time.Microsecond)
	s.reg.SetCameraVoxel(voxel.FromWorld(s.camera.Position(), s.config.VoxelSize))
	s.reg.DrainVoxelUpdates(s.clock.Now, microDeadline, 8)

	physicsDeadline := s.clock.Now().Add(50 * time.Microsecond)
	s.reg.PollPhysics(s.clock.Now, physicsDeadline, 8)

	searchStart := s.clock.Now()
	f := frustum.New(s.camera.Position(), s.camera.Orientation(), s.camera.FOVDegrees(), s.camera.Aspect(), s.distance.renderDistance)
	searchResult := frustum.Search(frustum.Params{
		Grid:        s.grid,
		Frustum:     f,
		Cache:       s.cache,
		CameraVoxel: voxel.FromWorld(s.camera.Position(), s.config.VoxelSize),
		VoxelSize:   s.config.VoxelSize,
		GraceWindow: s.config.GraceWindow,
		Now:         s.clock.Now,
		Deadline:    searchStart.Add(s.config.SearchTimeBudget),
		CheckEvery:  16,
		RNG:         s.rng,
	})
	searchDuration := s.clock.Now().Sub(searchStart)

	ingestStart := s.clock.Now()
	ingestResult := s.runIngest(searchResult.Visible, s.clock.Now, ingestStart.Add(s.config.IngestTimeBudget))
	ingestDuration := s.clock.Now().Sub(ingestStart)

	for handle, last := range s.visibleNow {
		// Objects seen this frame were stamped during ingest, at or after
		// ingestStart; anything older was not seen this frame.
		if last.Before(ingestStart) {
			rec, ok := s.reg.Record(handle)
			if ok {
				s.fireExited(handle, rec.Obj)
			}
			delete(s.visibleNow, handle)
		}
	}

	avgObjectDeltaEntry := 0.0
	if s.pendingObjectDeltaCount > 0 {
		avgObjectDeltaEntry = s.pendingObjectDeltaSum / float64(s.pendingObjectDeltaCount)
	}
	s.metricsRing.recordFrame(searchResult.Skipped, ingestResult.skippedIngest, avgObjectDeltaEntry, searchDuration, ingestDuration)
	s.pendingObjectDeltaSum = 0
	s.pendingObjectDeltaCount = 0

	for _, handle := range ingestResult.entered {
		s.fireEntered(handle)
	}

	if s.config.DynamicRenderDistance {
		refreshMid := (s.config.BestRefreshRate + s.config.WorstRefreshRate) / 2
		s.distance.update(
			s.metricsRing.avgSkippedIngest(), s.metricsRing.avgSkippedSearch(), s.metricsRing.avgObjectDelta(),
			refreshMid, s.config.BestRefreshRate,
			searchDuration, s.config.SearchTimeBudget, ingestDuration, s.config.IngestTimeBudget,
		)
	}

	if now.Sub(s.lastShrink) > 5*time.Second {
		s.shrinkScratch()
		s.lastShrink = now
	}

	s.ranThisFrame = true
}

// shrinkScratch periodically reclaims capacity in scratch maps that can
// grow large during a population spike and then stay oversized.
func (s *Scheduler) shrinkScratch() {
	if len(s.visibleNow) == 0 {
		return
	}
	fresh := make(map[registry.Handle]time.Time, len(s.visibleNow))
	for k, v := range s.visibleNow {
		fresh[k] = v
	}
	s.visibleNow = fresh
}

// tanHalfFOV returns tan(FOV/2) for the camera's current field of view.
func (s *Scheduler) tanHalfFOV() float32 {
	half := mgl32.DegToRad(s.camera.FOVDegrees() / 2)
	return float32(math.Tan(float64(half)))
}

// GetVisibleObjects runs the scheduler if it hasn't already this frame,
// and returns a snapshot clone of the incoming batch's current contents —
// never the live backing array, so the caller mutating the returned
// slice cannot corrupt scheduler state.
func (s *Scheduler) GetVisibleObjects() []any {
	s.ensureFrameRan()
	snapshot := s.visibleQueue.IncomingSnapshot()
	out := make([]any, 0, len(snapshot))
	for _, e := range snapshot {
		rec, ok := s.reg.Record(registry.Handle(e.Handle))
		if !ok {
			continue
		}
		out = append(out, rec.Obj)
	}
	return out
}

// IterateObjectsToUpdate returns a sequence of objects due for an update
// this frame, most urgent first, time-budgeted per spec.md §4.6. On its
// first invocation in a frame it ensures the scheduler has run and folds
// the incoming batch into the heap.
func (s *Scheduler) IterateObjectsToUpdate() iter.Seq[UpdateItem] {
	return func(yield func(UpdateItem) bool) {
		s.ensureFrameRan()
		if !s.iteratedThisFrame {
			s.visibleQueue.EnqueueIncomingBatch()
			s.iteratedThisFrame = true
		}

		iterStart := s.clock.Now()
		budget := s.config.UpdateTimeBudget
		deadline := iterStart.Add(budget)
		p0Deadline := iterStart.Add(time.Duration(float64(budget) * 1.15))

		for !s.visibleQueue.IsEmpty() {
			priority, ok := s.visibleQueue.Priority(s.visibleQueue.Peek())
			if !ok {
				break
			}
			now := s.clock.Now()
			isP0 := priority <= P0Threshold

			if isP0 {
				if !s.config.StrictlyEnforceWorstRefreshRate && !now.Before(p0Deadline) {
					s.visibleQueue.Clear()
					break
				}
			} else if !now.Before(deadline) {
				s.visibleQueue.Clear()
				break
			}

			handle := registry.Handle(s.visibleQueue.Dequeue())
			rec, ok := s.reg.Record(handle)
			if !ok {
				s.logger.Warnf("missing object record for handle %d in visible queue", handle)
				continue
			}

			dt := now.Sub(rec.LastUpdateClock)
			rec.LastUpdateClock = now
			if dt.Seconds() < 1.0 {
				s.pendingObjectDeltaSum += dt.Seconds()
				s.pendingObjectDeltaCount++
			}

			item := UpdateItem{Object: rec.Obj, ObjectDeltaTime: dt, Distance: rec.Distance}
			if !yield(item) {
				return
			}
		}
	}
}

// rebuildGrid re-derives every registered object's voxel membership
// around a new voxel size, clearing and repopulating the grid in place.
func (s *Scheduler) rebuildGrid() {
	s.grid.Reset(s.config.VoxelSize)
	s.reg.SetVoxelSize(s.config.VoxelSize)
	s.reg.RebuildMembership()
}
