package registry

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/cullthrottle/voxel"
)

// Handle identifies a registered object. Issued by Registry.Add* in
// increasing order; stable for the object's lifetime. Per spec.md's design
// notes, priority-queue dedup is keyed on this numeric handle plus a
// side-table, never on the external object reference itself.
type Handle uint64

// Record is everything the scheduler tracks about one registered object
// between the DimensionAdapter and the voxel grid.
type Record struct {
	Handle Handle
	Obj    any
	Kind   Kind

	Pose      Pose
	HalfBound mgl32.Vec3
	Radius    float32
	Distance  float32

	VoxelKeys        map[voxel.Key]struct{}
	DesiredVoxelKeys map[voxel.Key]bool // true = pending insert, false = pending removal

	LastCheckClock  time.Time
	LastUpdateClock time.Time
	JitterOffset    time.Duration // random, assigned once at Add; desyncs neighbors' update cadence

	IsPhysics bool
	observer  ObserverHandle
	queued    bool
}

func newRecord(handle Handle, obj any, kind Kind, pose Pose, bounds Bounds) *Record {
	return &Record{
		Handle:           handle,
		Obj:              obj,
		Kind:             kind,
		Pose:             pose,
		HalfBound:        bounds.HalfExtent,
		Radius:           bounds.Radius,
		VoxelKeys:        make(map[voxel.Key]struct{}),
		DesiredVoxelKeys: make(map[voxel.Key]bool),
	}
}
