package registry

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/cullthrottle/pqueue"
	"github.com/gekko3d/cullthrottle/voxel"
)

// ErrNotAddable is wrapped with the dimension kind that failed to resolve
// a pose or bounding box, and returned by Add.
var ErrNotAddable = fmt.Errorf("object not addable")

// maxJitterOffset bounds the per-object random offset applied to elapsed-
// since-last-update in the priority formula, so neighboring objects added
// in the same frame don't all come due for an update in lockstep.
const maxJitterOffset = 2 * time.Millisecond

// Registry owns ObjectRecords by Handle, keeps the voxel grid in sync with
// each object's desired voxel membership, and runs the micro-budgeted
// voxel-update and physics-poll passes described in spec.md §4.3.
type Registry struct {
	grid      *voxel.Grid
	voxelSize float32
	adapters  map[Kind]DimensionAdapter

	records    map[Handle]*Record
	nextHandle Handle

	voxelUpdates *pqueue.PriorityQueue
	physics      []Handle
	physicsCur   int

	cameraVoxel voxel.Key

	jitterRand *rand.Rand
}

// New creates an empty registry backed by grid, using voxelSize to compute
// object-to-voxel memberships, dispatching to adapters by Kind.
func New(grid *voxel.Grid, voxelSize float32, adapters map[Kind]DimensionAdapter) *Registry {
	return &Registry{
		grid:         grid,
		voxelSize:    voxelSize,
		adapters:     adapters,
		records:      make(map[Handle]*Record),
		voxelUpdates: pqueue.New(),
		jitterRand:   rand.New(rand.NewSource(1)),
	}
}

// SetJitterRNG overrides the PRNG used to assign each new record's
// JitterOffset, for tests that need a deterministic or zeroed offset.
func (r *Registry) SetJitterRNG(rng *rand.Rand) { r.jitterRand = rng }

// SetVoxelSize updates the voxel size used for future membership
// recomputation. Callers are expected to rebuild the grid and re-register
// objects around a size change, per Scheduler.SetVoxelSize.
func (r *Registry) SetVoxelSize(size float32) { r.voxelSize = size }

// SetCameraVoxel updates the voxel the voxel-update queue prioritizes
// against; called once per frame before draining.
func (r *Registry) SetCameraVoxel(k voxel.Key) { r.cameraVoxel = k }

// Add registers obj under kind, resolving its initial pose and bounds via
// the adapter registered for that kind. Returns ErrNotAddable (wrapped
// with the kind) if no adapter is registered or the adapter can't resolve
// the object.
func (r *Registry) Add(obj any, kind Kind) (Handle, error) {
	return r.add(obj, kind, false)
}

// AddPhysics registers obj the same way Add does, but also enrolls it in
// the round-robin physics poll list, since physics-driven motion doesn't
// always fire pose-change observers.
func (r *Registry) AddPhysics(obj any, kind Kind) (Handle, error) {
	return r.add(obj, kind, true)
}

// sortedKinds returns the registry's configured kinds in ascending order,
// so AddAny/AddPhysicsAny try adapters in a deterministic sequence rather
// than a map's randomized iteration order.
func (r *Registry) sortedKinds() []Kind {
	kinds := make([]Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// AddAny registers obj without the caller specifying its Kind: every
// configured adapter's Resolve is tried in ascending Kind order until one
// succeeds. This is what Scheduler.AddObject calls, matching the external
// single-argument AddObject(object) contract — the DimensionAdapter layer
// is what categorizes objects into kinds, not the caller.
func (r *Registry) AddAny(obj any) (Handle, error) {
	return r.addAny(obj, false)
}

// AddPhysicsAny is AddAny plus round-robin physics polling, matching
// Scheduler.AddPhysicsObject's single-argument contract.
func (r *Registry) AddPhysicsAny(obj any) (Handle, error) {
	return r.addAny(obj, true)
}

func (r *Registry) addAny(obj any, isPhysics bool) (Handle, error) {
	for _, kind := range r.sortedKinds() {
		if _, _, ok := r.adapters[kind].Resolve(obj); ok {
			return r.add(obj, kind, isPhysics)
		}
	}
	return 0, fmt.Errorf("no adapter could resolve object: %w", ErrNotAddable)
}

func (r *Registry) add(obj any, kind Kind, isPhysics bool) (Handle, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return 0, fmt.Errorf("no adapter registered for kind %s: %w", kind, ErrNotAddable)
	}
	pose, bounds, ok := adapter.Resolve(obj)
	if !ok {
		return 0, fmt.Errorf("adapter could not resolve %s: %w", kind, ErrNotAddable)
	}

	r.nextHandle++
	handle := r.nextHandle
	rec := newRecord(handle, obj, kind, pose, bounds)
	rec.IsPhysics = isPhysics
	rec.JitterOffset = time.Duration(r.jitterRand.Int63n(int64(2*maxJitterOffset))) - maxJitterOffset

	observer, err := adapter.Observe(obj, r.onChangeFunc(handle))
	if err != nil {
		return 0, fmt.Errorf("adapter could not observe %s: %w", kind, ErrNotAddable)
	}
	rec.observer = observer

	r.records[handle] = rec
	if isPhysics {
		r.physics = append(r.physics, handle)
	}

	r.recomputeDesiredVoxels(rec)
	r.applyPending(rec)
	r.voxelUpdates.Remove(pqueue.Handle(handle))
	rec.queued = false

	return handle, nil
}

// onChangeFunc returns the ChangeFunc an adapter invokes on pose/bounds
// mutation. Wrapped in a recover so a misbehaving observer callback can
// never corrupt registry state (spec.md §7: "all observer callbacks are
// fire-and-forget").
func (r *Registry) onChangeFunc(handle Handle) ChangeFunc {
	return func(pose Pose, bounds Bounds) {
		defer func() { _ = recover() }()
		rec, ok := r.records[handle]
		if !ok {
			return
		}
		rec.Pose = pose
		rec.HalfBound = bounds.HalfExtent
		rec.Radius = bounds.Radius
		r.recomputeDesiredVoxels(rec)
	}
}

// Remove evicts handle's object from the grid, disposes its observer, and
// drops its record. Safe to call mid-frame; any later dequeue of this
// handle from a priority queue will simply find no record and skip.
func (r *Registry) Remove(handle Handle) {
	rec, ok := r.records[handle]
	if !ok {
		return
	}
	for k := range rec.VoxelKeys {
		r.grid.Remove(k, voxel.ObjectHandle(handle))
	}
	if rec.observer != nil {
		rec.observer.Dispose()
	}
	r.voxelUpdates.Remove(pqueue.Handle(handle))
	delete(r.records, handle)

	for i, h := range r.physics {
		if h == handle {
			last := len(r.physics) - 1
			r.physics[i] = r.physics[last]
			r.physics = r.physics[:last]
			if r.physicsCur > i {
				r.physicsCur--
			}
			break
		}
	}
}

// Record returns the record for handle, or (nil, false) if it doesn't
// exist — e.g. because RemoveObject ran between enqueue and dequeue.
func (r *Registry) Record(handle Handle) (*Record, bool) {
	rec, ok := r.records[handle]
	return rec, ok
}

// Len returns the number of currently registered objects.
func (r *Registry) Len() int { return len(r.records) }

// RebuildMembership recomputes and reinserts every object's voxel
// membership from scratch, assuming the grid has just been wiped (via
// Grid.Reset with a new voxel size). Bypasses the voxel-update queue
// entirely since there is nothing incremental to stage against an empty
// grid.
func (r *Registry) RebuildMembership() {
	for _, rec := range r.records {
		rec.VoxelKeys = make(map[voxel.Key]struct{})
		rec.DesiredVoxelKeys = make(map[voxel.Key]bool)
		rec.queued = false
		r.recomputeDesiredVoxels(rec)
		r.applyPending(rec)
		r.voxelUpdates.Remove(pqueue.Handle(rec.Handle))
		rec.queued = false
	}
}

// cornerOffsets are the eight unit-cube corner directions, scaled by
// HalfExtent and rotated by pose before being converted to voxel keys.
var cornerOffsets = [8]struct{ x, y, z float32 }{
	{-1, -1, -1}, {-1, -1, 1}, {-1, 1, -1}, {-1, 1, 1},
	{1, -1, -1}, {1, -1, 1}, {1, 1, -1}, {1, 1, 1},
}

// recomputeDesiredVoxels implements spec.md §4.3's membership algorithm:
// compute the desired voxel set from the object's current pose/bounds,
// diff it against the object's current voxelKeys, and stage any changes
// in DesiredVoxelKeys rather than applying them immediately.
func (r *Registry) recomputeDesiredVoxels(rec *Record) {
	centerKey := voxel.FromWorld(rec.Pose.Position, r.voxelSize)
	desired := map[voxel.Key]struct{}{centerKey: {}}

	if rec.Radius > r.voxelSize/8 {
		for _, c := range cornerOffsets {
			local := mgl32.Vec3{rec.HalfBound.X() * c.x, rec.HalfBound.Y() * c.y, rec.HalfBound.Z() * c.z}
			corner := rec.Pose.Position.Add(rec.Pose.Rotation.Rotate(local))
			desired[voxel.FromWorld(corner, r.voxelSize)] = struct{}{}
		}
	}

	for k := range rec.VoxelKeys {
		if _, ok := desired[k]; ok {
			delete(desired, k)
		} else {
			rec.DesiredVoxelKeys[k] = false
		}
	}
	for k := range desired {
		rec.DesiredVoxelKeys[k] = true
	}

	if len(rec.DesiredVoxelKeys) > 0 && !rec.queued {
		priority := float64(centerKey.Manhattan(r.cameraVoxel))
		r.voxelUpdates.Enqueue(pqueue.Handle(rec.Handle), priority)
		rec.queued = true
	}
}

// applyPending performs every staged insert/remove in rec.DesiredVoxelKeys
// against the grid atomically (from the grid's perspective: both sides of
// a move land in the same call) and clears the staging map.
func (r *Registry) applyPending(rec *Record) {
	if len(rec.DesiredVoxelKeys) == 0 {
		return
	}
	for k, insert := range rec.DesiredVoxelKeys {
		if insert {
			r.grid.Insert(k, voxel.ObjectHandle(rec.Handle))
			rec.VoxelKeys[k] = struct{}{}
		} else {
			r.grid.Remove(k, voxel.ObjectHandle(rec.Handle))
			delete(rec.VoxelKeys, k)
		}
		delete(rec.DesiredVoxelKeys, k)
	}
	rec.queued = false
}

// DrainVoxelUpdates pops objects off the voxel-update queue and applies
// their pending grid changes until the queue empties or now reaches
// deadline, checking the clock every checkEvery pops to avoid a syscall
// per object.
func (r *Registry) DrainVoxelUpdates(now func() time.Time, deadline time.Time, checkEvery int) int {
	processed := 0
	for !r.voxelUpdates.IsEmpty() {
		if processed%checkEvery == 0 && !now().Before(deadline) {
			break
		}
		handle := Handle(r.voxelUpdates.Dequeue())
		rec, ok := r.records[handle]
		if !ok {
			processed++
			continue
		}
		rec.queued = false
		r.applyPending(rec)
		processed++
	}
	return processed
}

// PollPhysics advances the round-robin physics cursor, recomputing desired
// voxels (and applying them immediately, since physics objects bypass the
// observer-driven queue) for objects until now reaches deadline.
func (r *Registry) PollPhysics(now func() time.Time, deadline time.Time, checkEvery int) int {
	processed := 0
	n := len(r.physics)
	for i := 0; i < n; i++ {
		if processed%checkEvery == 0 && !now().Before(deadline) {
			break
		}
		if r.physicsCur >= len(r.physics) {
			r.physicsCur = 0
		}
		if len(r.physics) == 0 {
			break
		}
		handle := r.physics[r.physicsCur]
		r.physicsCur = (r.physicsCur + 1) % len(r.physics)

		rec, ok := r.records[handle]
		if ok {
			r.recomputeDesiredVoxels(rec)
			r.applyPending(rec)
			r.voxelUpdates.Remove(pqueue.Handle(handle))
			rec.queued = false
		}
		processed++
	}
	return processed
}
