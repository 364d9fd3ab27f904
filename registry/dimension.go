// Package registry owns the set of objects tracked by the scheduler: their
// resolved pose and bounds, their current and desired voxel membership,
// and the bookkeeping (last-checked/last-updated clocks, jitter) the
// ingest pass needs.
//
// Grounded on the teacher's rigid transform composition (transform_hierarchy.go,
// mod_hierarchy.go): pose is a position (mgl32.Vec3) plus a rotation
// (mgl32.Quat), composed the same way world transforms are there.
package registry

import "github.com/go-gl/mathgl/mgl32"

// Pose is a rigid transform: world-space position and orientation.
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// Bounds is an object's local bounding volume, read alongside its pose.
type Bounds struct {
	HalfExtent mgl32.Vec3
	Radius     float32
}

// Kind is the closed set of external object categories a DimensionAdapter
// can resolve. Dispatch on Kind is a table lookup (see adapters map on
// Registry), the same shape the teacher uses to dispatch on LightType and
// ColliderShape.
type Kind int

const (
	KindRigidBody Kind = iota
	KindComposite
	KindBone
	KindAttachment
	KindBeam
	KindRangedEmitter
	KindRangedSound
)

func (k Kind) String() string {
	switch k {
	case KindRigidBody:
		return "RigidBody"
	case KindComposite:
		return "Composite"
	case KindBone:
		return "Bone"
	case KindAttachment:
		return "Attachment"
	case KindBeam:
		return "Beam"
	case KindRangedEmitter:
		return "RangedEmitter"
	case KindRangedSound:
		return "RangedSound"
	default:
		return "Unknown"
	}
}

// ObserverHandle is a disposable subscription returned by Observe. Callers
// must Dispose it when the corresponding object is removed.
type ObserverHandle interface {
	Dispose()
}

// ChangeFunc is invoked by a DimensionAdapter whenever an object's pose or
// bounds changes. Implementations must treat this as fire-and-forget:
// a panicking observer must not be allowed to corrupt registry state, so
// callers invoke it behind a recover.
type ChangeFunc func(Pose, Bounds)

// DimensionAdapter resolves reads and change notifications for every
// object of one Kind. An object whose pose or bounds cannot be resolved
// fails Resolve with ok=false, which the registry surfaces as NotAddable.
type DimensionAdapter interface {
	Kind() Kind
	Resolve(obj any) (pose Pose, bounds Bounds, ok bool)
	Observe(obj any, onChange ChangeFunc) (ObserverHandle, error)
}
