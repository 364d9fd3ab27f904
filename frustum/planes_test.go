package frustum

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestBoxWhollyInside(t *testing.T) {
	f := New(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent(), 90, 1.0, 100)

	center := mgl32.Vec3{0, 0, -10}
	half := mgl32.Vec3{1, 1, 1}
	intersects, complete := f.TestBox(center, half, true)
	if !intersects || !complete {
		t.Errorf("expected box wholly inside frustum to report (true, true), got (%v, %v)", intersects, complete)
	}
}

func TestBoxWhollyOutside(t *testing.T) {
	f := New(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent(), 90, 1.0, 100)

	center := mgl32.Vec3{0, 0, 50}
	half := mgl32.Vec3{1, 1, 1}
	intersects, complete := f.TestBox(center, half, true)
	if intersects || complete {
		t.Errorf("expected box behind camera to report (false, false), got (%v, %v)", intersects, complete)
	}
}

func TestBoxStraddlingOnePlane(t *testing.T) {
	f := New(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent(), 90, 1.0, 100)

	// Far plane sits at z=-100 with default orientation (forward -Z).
	// A box centered right on the far plane straddles it.
	center := mgl32.Vec3{0, 0, -100}
	half := mgl32.Vec3{1, 1, 1}
	intersects, complete := f.TestBox(center, half, true)
	if !intersects {
		t.Fatalf("expected straddling box to intersect")
	}
	if complete {
		t.Errorf("expected straddling box to not be completely inside")
	}
}

func TestFOVNarrowerThan60ScalesRenderDistance(t *testing.T) {
	wide := New(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent(), 90, 1.0, 100)
	narrow := New(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent(), 30, 1.0, 100)

	// The far plane point's distance from origin tells us the effective
	// render distance used; narrow FOV should push it further out.
	wideFar := wide.Far.Point.Sub(mgl32.Vec3{0, 0, 0}).Len()
	narrowFar := narrow.Far.Point.Sub(mgl32.Vec3{0, 0, 0}).Len()
	if narrowFar <= wideFar {
		t.Errorf("expected narrow FOV (30deg) to scale render distance up: wide=%v narrow=%v", wideFar, narrowFar)
	}
}

func TestVoxelBoundsEnclosesFrustum(t *testing.T) {
	f := New(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent(), 90, 1.0, 20)
	min, max := f.VoxelBounds(4)

	if min.I > 0 || min.J > 0 {
		t.Errorf("expected bounds to extend to include the camera origin, got min=%v", min)
	}
	if max.I <= 0 && max.J <= 0 {
		t.Errorf("expected bounds to extend outward from origin, got max=%v", max)
	}
}
