// Package frustum builds the camera view volume each frame and tests
// voxel-sized boxes against it.
//
// Grounded on the teacher's CameraState.ExtractFrustum (camera.go), which
// derives plane equations from a view-projection matrix; this package
// derives the same five planes directly from camera pose, FOV and aspect
// instead, since there is no render pipeline here to hand us a matrix.
// The box-vs-plane arithmetic follows the same shape as AABBInFrustum in
// culling_test.go's subject under test.
package frustum

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/cullthrottle/voxel"
)

const epsilon = 1e-5

// Plane is a half-space boundary: Point lies on the plane, and Normal
// points toward the exterior of the frustum (the side a box must be
// entirely on to be culled). Named for the pair spec.md documents as
// (pointOnPlane, inwardNormal); see TestBox for the sign convention this
// implementation relies on.
type Plane struct {
	Point  mgl32.Vec3
	Normal mgl32.Vec3
}

// Frustum is the view volume bounded by the four side planes and the far
// plane; there is no near plane in this design.
type Frustum struct {
	Left, Right, Top, Bottom, Far Plane

	position   mgl32.Vec3
	farCorners [4]mgl32.Vec3
}

// New derives a Frustum from camera pose, vertical field of view (degrees),
// viewport aspect ratio (width/height), and a base render distance. FOV
// below 60 degrees scales the effective render distance up to compensate
// for the narrower view, per the "2 − FOV/60" rule.
func New(position mgl32.Vec3, orientation mgl32.Quat, fovDegrees, aspect, renderDistance float32) *Frustum {
	effectiveDistance := renderDistance
	if fovDegrees < 60 {
		effectiveDistance *= 2 - fovDegrees/60
	}

	forward := orientation.Rotate(mgl32.Vec3{0, 0, -1}).Normalize()
	up := orientation.Rotate(mgl32.Vec3{0, 1, 0}).Normalize()
	right := orientation.Rotate(mgl32.Vec3{1, 0, 0}).Normalize()

	halfVFov := mgl32.DegToRad(fovDegrees / 2)
	halfHeight := effectiveDistance * float32(math.Tan(float64(halfVFov)))
	halfWidth := halfHeight * aspect

	farCenter := position.Add(forward.Mul(effectiveDistance))
	upExtent := up.Mul(halfHeight)
	rightExtent := right.Mul(halfWidth)

	farTopLeft := farCenter.Add(upExtent).Sub(rightExtent)
	farTopRight := farCenter.Add(upExtent).Add(rightExtent)
	farBottomLeft := farCenter.Sub(upExtent).Sub(rightExtent)
	farBottomRight := farCenter.Sub(upExtent).Add(rightExtent)

	leftDir := forward.Mul(effectiveDistance).Sub(rightExtent)
	rightDir := forward.Mul(effectiveDistance).Add(rightExtent)
	topDir := forward.Mul(effectiveDistance).Add(upExtent)
	bottomDir := forward.Mul(effectiveDistance).Sub(upExtent)

	f := &Frustum{
		position:   position,
		farCorners: [4]mgl32.Vec3{farTopLeft, farTopRight, farBottomLeft, farBottomRight},
		Left:       Plane{Point: position, Normal: up.Cross(leftDir).Normalize()},
		Right:      Plane{Point: position, Normal: rightDir.Cross(up).Normalize()},
		Top:        Plane{Point: position, Normal: right.Cross(topDir).Normalize()},
		Bottom:     Plane{Point: position, Normal: bottomDir.Cross(right).Normalize()},
		Far:        Plane{Point: farCenter, Normal: forward},
	}
	return f
}

func (f *Frustum) planes() [5]Plane {
	return [5]Plane{f.Left, f.Right, f.Top, f.Bottom, f.Far}
}

// TestBox checks an axis-aligned box (given as world-space center and
// half-extents) against the frustum. It always reports whether the box
// intersects (is not entirely outside); when trackComplete is true it
// also reports whether the box is entirely inside every plane, matching
// the "intersects-only" vs "completely-inside" modes spec.md describes.
func (f *Frustum) TestBox(center, halfExtent mgl32.Vec3, trackComplete bool) (intersects, completelyInside bool) {
	completelyInside = true
	for _, p := range f.planes() {
		d := center.Sub(p.Point).Dot(p.Normal)
		r := float32(math.Abs(float64(halfExtent.X()*p.Normal.X()))) +
			float32(math.Abs(float64(halfExtent.Y()*p.Normal.Y()))) +
			float32(math.Abs(float64(halfExtent.Z()*p.Normal.Z())))

		if d > r+epsilon {
			return false, false
		}
		if trackComplete && d+r > epsilon {
			completelyInside = false
		}
	}
	return true, trackComplete && completelyInside
}

// VoxelBounds returns the inclusive voxel-coordinate box enclosing the
// camera position and the four far-plane corners, floored per axis.
func (f *Frustum) VoxelBounds(voxelSize float32) (min, max voxel.Key) {
	points := [5]mgl32.Vec3{f.position, f.farCorners[0], f.farCorners[1], f.farCorners[2], f.farCorners[3]}
	min = voxel.FromWorld(points[0], voxelSize)
	max = min
	for _, pt := range points[1:] {
		k := voxel.FromWorld(pt, voxelSize)
		if k.I < min.I {
			min.I = k.I
		}
		if k.J < min.J {
			min.J = k.J
		}
		if k.K < min.K {
			min.K = k.K
		}
		if k.I > max.I {
			max.I = k.I
		}
		if k.J > max.J {
			max.J = k.J
		}
		if k.K > max.K {
			max.K = k.K
		}
	}
	return min, max
}
