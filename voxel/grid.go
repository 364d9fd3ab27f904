package voxel

// ObjectHandle identifies a registered object. The grid never dereferences
// it; it only ever stores and compares the numeric value.
type ObjectHandle uint64

// bucket holds every object occupying one voxel, plus the voxel's own key
// so a 64-bit hash collision between two distinct keys can be detected.
type bucket struct {
	key     Key
	objects []ObjectHandle
}

// Grid is a sparse mapping from Key to the set of object handles occupying
// that voxel. It does not enforce uniqueness of a handle within a voxel or
// across voxels — ObjectRegistry's desired-voxel-keys protocol guarantees
// that each (object, voxel) pair is inserted and removed exactly once.
//
// Grounded on the teacher's SpatialHashGrid (mod_spatialgrid.go): a map
// keyed by a hashed cell coordinate rather than a native Go map[Key], with
// the same "build it fresh" approach to clearing (see Reset).
type Grid struct {
	voxelSize float32
	buckets   map[uint64]*bucket
}

// New creates an empty grid with the given voxel side length.
func New(voxelSize float32) *Grid {
	return &Grid{
		voxelSize: voxelSize,
		buckets:   make(map[uint64]*bucket),
	}
}

// VoxelSize returns the grid's voxel side length.
func (g *Grid) VoxelSize() float32 { return g.voxelSize }

// Len returns the number of non-empty voxels currently tracked.
func (g *Grid) Len() int { return len(g.buckets) }

func (g *Grid) find(key Key) *bucket {
	h := key.hash()
	for {
		b, ok := g.buckets[h]
		if !ok {
			return nil
		}
		if b.key == key {
			return b
		}
		// Collision between two distinct keys hashing to the same 64-bit
		// value: vanishingly unlikely at the population sizes this grid
		// targets, but probe the next slot rather than silently merging
		// two voxels.
		h++
	}
}

func (g *Grid) findOrCreate(key Key) *bucket {
	h := key.hash()
	for {
		b, ok := g.buckets[h]
		if !ok {
			b = &bucket{key: key}
			g.buckets[h] = b
			return b
		}
		if b.key == key {
			return b
		}
		h++
	}
}

// Insert adds obj to the voxel at key, creating the voxel's bucket if
// necessary. Membership is not deduplicated here — callers (ObjectRegistry)
// must not insert the same (key, obj) pair twice.
func (g *Grid) Insert(key Key, obj ObjectHandle) {
	b := g.findOrCreate(key)
	b.objects = append(b.objects, obj)
}

// Remove evicts obj from the voxel at key via swap-with-last. If the voxel
// becomes empty its bucket slot is dropped and the probe chain past it is
// repaired. A miss (obj not present) is a silent no-op.
func (g *Grid) Remove(key Key, obj ObjectHandle) {
	h := key.hash()
	for {
		b, ok := g.buckets[h]
		if !ok {
			return
		}
		if b.key == key {
			for i, o := range b.objects {
				if o == obj {
					last := len(b.objects) - 1
					b.objects[i] = b.objects[last]
					b.objects = b.objects[:last]
					if len(b.objects) == 0 {
						g.vacate(h)
					}
					return
				}
			}
			return
		}
		h++
	}
}

// vacate removes the bucket at slot h and repairs the probe chain: any
// bucket further along the chain whose own hash sits at or before h must be
// shifted back into h, or find/findOrCreate would stop at the now-empty
// slot and never reach it. Standard backward-shift deletion for linear
// probing, adapted to a map standing in for the probed array.
func (g *Grid) vacate(h uint64) {
	delete(g.buckets, h)
	gap := h
	probe := h + 1
	for {
		b, ok := g.buckets[probe]
		if !ok {
			return
		}
		if b.key.hash() <= gap {
			g.buckets[gap] = b
			delete(g.buckets, probe)
			gap = probe
		}
		probe++
	}
}

// VoxelAt returns the object handles occupying key, or nil if the voxel is
// absent (empty voxels are never retained). The returned slice must not be
// mutated by the caller; order within it is unspecified and stable only
// between insertions.
func (g *Grid) VoxelAt(key Key) []ObjectHandle {
	b := g.find(key)
	if b == nil {
		return nil
	}
	return b.objects
}

// Has reports whether any object currently occupies key.
func (g *Grid) Has(key Key) bool {
	return g.find(key) != nil
}

// Reset discards every bucket and adopts a new voxel size, in place. Used
// when the voxel size changes: the grid is wiped and every object's
// membership is recomputed and reinserted by the caller.
func (g *Grid) Reset(voxelSize float32) {
	g.voxelSize = voxelSize
	g.buckets = make(map[uint64]*bucket)
}
