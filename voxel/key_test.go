package voxel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestFromWorld(t *testing.T) {
	tests := []struct {
		name      string
		pos       mgl32.Vec3
		voxelSize float32
		want      Key
	}{
		{"origin", mgl32.Vec3{0, 0, 0}, 4, Key{0, 0, 0}},
		{"positive interior", mgl32.Vec3{5, 9, 3}, 4, Key{1, 2, 0}},
		{"negative floors down", mgl32.Vec3{-0.5, -4.01, -4}, 4, Key{-1, -2, -1}},
		{"exact boundary", mgl32.Vec3{8, 8, 8}, 4, Key{2, 2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromWorld(tt.pos, tt.voxelSize)
			if got != tt.want {
				t.Errorf("FromWorld(%v, %v) = %v, want %v", tt.pos, tt.voxelSize, got, tt.want)
			}
		})
	}
}

func TestKeyManhattan(t *testing.T) {
	a := Key{0, 0, 0}
	b := Key{2, -3, 1}
	if got := a.Manhattan(b); got != 6 {
		t.Errorf("Manhattan(%v, %v) = %d, want 6", a, b, got)
	}
	if got := b.Manhattan(a); got != 6 {
		t.Errorf("Manhattan must be symmetric, got %d", got)
	}
	if got := a.Manhattan(a); got != 0 {
		t.Errorf("Manhattan(a, a) = %d, want 0", got)
	}
}

func TestKeyHashStableAndDistinguishing(t *testing.T) {
	a := Key{1, 2, 3}
	b := Key{1, 2, 3}
	c := Key{3, 2, 1}

	if a.hash() != b.hash() {
		t.Errorf("identical keys must hash identically")
	}
	if a.hash() == c.hash() {
		t.Errorf("distinct keys %v and %v hashed to the same value", a, c)
	}
}
