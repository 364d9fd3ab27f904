package voxel

import "testing"

func TestGridInsertAndQuery(t *testing.T) {
	g := New(4)
	k := Key{I: 1, J: 2, K: 3}

	if g.Has(k) {
		t.Fatalf("expected empty grid to not have key %v", k)
	}

	g.Insert(k, 10)
	g.Insert(k, 11)

	got := g.VoxelAt(k)
	if len(got) != 2 {
		t.Fatalf("expected 2 objects at %v, got %d", k, len(got))
	}

	other := Key{I: -1, J: 2, K: 3}
	if g.Has(other) {
		t.Fatalf("expected %v to be empty", other)
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 occupied voxel, got %d", g.Len())
	}
}

func TestGridRemoveDropsEmptyBucket(t *testing.T) {
	g := New(4)
	k := Key{I: 0, J: 0, K: 0}

	g.Insert(k, 1)
	g.Insert(k, 2)

	g.Remove(k, 1)
	got := g.VoxelAt(k)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected remaining object 2, got %v", got)
	}

	g.Remove(k, 2)
	if g.Has(k) {
		t.Fatalf("expected voxel to be dropped once empty")
	}
	if g.Len() != 0 {
		t.Fatalf("expected 0 occupied voxels, got %d", g.Len())
	}
}

func TestGridRemoveMissingIsNoop(t *testing.T) {
	g := New(4)
	k := Key{I: 5, J: 5, K: 5}

	g.Remove(k, 99)
	if g.Has(k) {
		t.Fatalf("removing from an absent voxel must not create it")
	}

	g.Insert(k, 1)
	g.Remove(k, 42)
	if got := g.VoxelAt(k); len(got) != 1 {
		t.Fatalf("removing a handle that was never present must not disturb existing ones, got %v", got)
	}
}

func TestGridDistinctVoxelsIndependent(t *testing.T) {
	g := New(2)
	a := Key{I: 0, J: 0, K: 0}
	b := Key{I: 100, J: -50, K: 7}

	g.Insert(a, 1)
	g.Insert(b, 2)

	if len(g.VoxelAt(a)) != 1 || len(g.VoxelAt(b)) != 1 {
		t.Fatalf("expected independent single-object voxels")
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 occupied voxels, got %d", g.Len())
	}
}
