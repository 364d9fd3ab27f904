package frustum

import (
	"math/rand"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/cullthrottle/voxel"
)

// maxEnumeratedVolume bounds how large a multi-voxel volume's "scan
// contained keys" step is willing to enumerate exhaustively. Above this
// the occupancy pre-check is skipped and the volume falls straight
// through to the plane test and further splitting, since walking every
// coordinate in a huge empty region would cost more than the test it's
// meant to avoid.
const maxEnumeratedVolume = 4096

// Cache is the voxel visibility cache: VoxelKey to the clock time it was
// last proven inside the frustum, used as the grace-window fast path.
type Cache struct {
	lastVisible map[voxel.Key]time.Time
}

// NewCache returns an empty visibility cache.
func NewCache() *Cache {
	return &Cache{lastVisible: make(map[voxel.Key]time.Time)}
}

func (c *Cache) get(k voxel.Key) (time.Time, bool) {
	t, ok := c.lastVisible[k]
	return t, ok
}

func (c *Cache) set(k voxel.Key, now time.Time) {
	c.lastVisible[k] = now
}

func (c *Cache) clear(k voxel.Key) {
	delete(c.lastVisible, k)
}

// Len reports how many voxels currently have a cached visibility entry.
func (c *Cache) Len() int { return len(c.lastVisible) }

// volume is an inclusive axis-aligned range of voxel keys.
type volume struct {
	min, max voxel.Key
}

func (v volume) isSingleVoxel() bool { return v.min == v.max }

func (v volume) anyAxisSingle() bool {
	return v.min.I == v.max.I || v.min.J == v.max.J || v.min.K == v.max.K
}

func axisLen(lo, hi int32) int64 { return int64(hi) - int64(lo) + 1 }

func (v volume) longestAxis() int {
	li, lj, lk := axisLen(v.min.I, v.max.I), axisLen(v.min.J, v.max.J), axisLen(v.min.K, v.max.K)
	axis := 0
	best := li
	if lj > best {
		axis, best = 1, lj
	}
	if lk > best {
		axis = 2
	}
	return axis
}

// voxelCount returns the number of voxel cells in v, or a value greater
// than maxEnumeratedVolume without overflow risk if it's clearly too big.
func (v volume) voxelCount() int64 {
	li, lj, lk := axisLen(v.min.I, v.max.I), axisLen(v.min.J, v.max.J), axisLen(v.min.K, v.max.K)
	if li > maxEnumeratedVolume || lj > maxEnumeratedVolume || lk > maxEnumeratedVolume {
		return maxEnumeratedVolume + 1
	}
	count := li * lj * lk
	if count > maxEnumeratedVolume {
		return maxEnumeratedVolume + 1
	}
	return count
}

func (v volume) forEachKey(f func(voxel.Key)) {
	for i := v.min.I; i <= v.max.I; i++ {
		for j := v.min.J; j <= v.max.J; j++ {
			for k := v.min.K; k <= v.max.K; k++ {
				f(voxel.Key{I: i, J: j, K: k})
			}
		}
	}
}

func splitAtMidpoint(v volume, axis int) (a, b volume) {
	a, b = v, v
	switch axis {
	case 0:
		mid := v.min.I + (v.max.I-v.min.I)/2
		a.max.I = mid
		b.min.I = mid + 1
	case 1:
		mid := v.min.J + (v.max.J-v.min.J)/2
		a.max.J = mid
		b.min.J = mid + 1
	default:
		mid := v.min.K + (v.max.K-v.min.K)/2
		a.max.K = mid
		b.min.K = mid + 1
	}
	return a, b
}

func splitOctants(v volume) []volume {
	midI := v.min.I + (v.max.I-v.min.I)/2
	midJ := v.min.J + (v.max.J-v.min.J)/2
	midK := v.min.K + (v.max.K-v.min.K)/2

	ranges := func(lo, mid, hi int32) [2][2]int32 {
		return [2][2]int32{{lo, mid}, {mid + 1, hi}}
	}
	ri := ranges(v.min.I, midI, v.max.I)
	rj := ranges(v.min.J, midJ, v.max.J)
	rk := ranges(v.min.K, midK, v.max.K)

	octants := make([]volume, 0, 8)
	for _, i := range ri {
		for _, j := range rj {
			for _, k := range rk {
				octants = append(octants, volume{
					min: voxel.Key{I: i[0], J: j[0], K: k[0]},
					max: voxel.Key{I: i[1], J: j[1], K: k[1]},
				})
			}
		}
	}
	return octants
}

func voxelWorldBox(k voxel.Key, voxelSize float32) (center, half mgl32.Vec3) {
	half = mgl32.Vec3{voxelSize / 2, voxelSize / 2, voxelSize / 2}
	center = mgl32.Vec3{
		(float32(k.I) + 0.5) * voxelSize,
		(float32(k.J) + 0.5) * voxelSize,
		(float32(k.K) + 0.5) * voxelSize,
	}
	return center, half
}

func volumeWorldBox(v volume, voxelSize float32) (center, half mgl32.Vec3) {
	minWorld := mgl32.Vec3{float32(v.min.I) * voxelSize, float32(v.min.J) * voxelSize, float32(v.min.K) * voxelSize}
	maxWorld := mgl32.Vec3{(float32(v.max.I) + 1) * voxelSize, (float32(v.max.J) + 1) * voxelSize, (float32(v.max.K) + 1) * voxelSize}
	center = minWorld.Add(maxWorld).Mul(0.5)
	half = maxWorld.Sub(minWorld).Mul(0.5)
	return center, half
}

// jitteredGrace applies the documented ±5% jitter to the grace window so
// that neighboring voxels don't all expire their cache entry in lockstep.
func jitteredGrace(graceWindow time.Duration, rng *rand.Rand) time.Duration {
	factor := 0.95 + rng.Float64()*0.10
	return time.Duration(float64(graceWindow) * factor)
}

// Params bundles one frame's search inputs. Now is polled, not a snapshot,
// so Deadline is checked against real elapsed time as the worklist drains
// rather than a single instant captured before the loop starts — the same
// pattern registry.go's DrainVoxelUpdates/PollPhysics use for their own
// time budgets.
type Params struct {
	Grid        *voxel.Grid
	Frustum     *Frustum
	Cache       *Cache
	CameraVoxel voxel.Key
	VoxelSize   float32
	GraceWindow time.Duration
	Now         func() time.Time
	Deadline    time.Time
	CheckEvery  int
	RNG         *rand.Rand
}

// Result is one frame's search output.
type Result struct {
	Visible []voxel.Key
	Skipped int
}

// Search runs the recursive top-down partition described in spec.md §4.4,
// implemented iteratively over a LIFO worklist. Grounded on the teacher's
// TLASBuilder.recursiveBuild (bvh/builder.go): split along the longest
// axis at the midpoint, push both children, except here the split is
// driven by a time budget and a frustum test rather than a fixed leaf
// size.
func Search(p Params) Result {
	visible := make([]voxel.Key, 0, 64)
	seen := make(map[voxel.Key]struct{}, 64)

	insert := func(k voxel.Key) {
		if _, ok := seen[k]; ok {
			return
		}
		d := p.CameraVoxel.Manhattan(k)
		idx := sort.Search(len(visible), func(i int) bool {
			return p.CameraVoxel.Manhattan(visible[i]) >= d
		})
		visible = append(visible, voxel.Key{})
		copy(visible[idx+1:], visible[idx:])
		visible[idx] = k
		seen[k] = struct{}{}
	}

	min, max := p.Frustum.VoxelBounds(p.VoxelSize)
	root := volume{min: min, max: max}

	var worklist []volume
	if root.anyAxisSingle() {
		worklist = append(worklist, root)
	} else {
		octants := splitOctants(root)
		p.RNG.Shuffle(len(octants), func(i, j int) { octants[i], octants[j] = octants[j], octants[i] })
		worklist = append(worklist, octants...)
	}

	checkEvery := p.CheckEvery
	if checkEvery < 1 {
		checkEvery = 1
	}

	skipped := 0
	budgetExceeded := false
	processed := 0
	now := p.Now()

	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if !budgetExceeded && processed%checkEvery == 0 {
			now = p.Now()
			if !now.Before(p.Deadline) {
				budgetExceeded = true
			}
		}
		processed++

		if budgetExceeded {
			skipped += p.staleReuse(now, v, insert)
			continue
		}

		if v.isSingleVoxel() {
			k := v.min
			if p.Grid.VoxelAt(k) == nil {
				continue
			}
			if last, ok := p.Cache.get(k); ok {
				if now.Sub(last) < jitteredGrace(p.GraceWindow, p.RNG) {
					insert(k)
					continue
				}
			}
			center, half := voxelWorldBox(k, p.VoxelSize)
			if intersects, _ := p.Frustum.TestBox(center, half, false); intersects {
				p.Cache.set(k, now)
				insert(k)
			} else {
				p.Cache.clear(k)
			}
			continue
		}

		present, bounded := p.scanPresent(v)
		if bounded && len(present) == 0 {
			continue
		}
		if bounded && p.allWithinGrace(now, present) {
			for _, k := range present {
				insert(k)
			}
			continue
		}

		center, half := volumeWorldBox(v, p.VoxelSize)
		intersects, complete := p.Frustum.TestBox(center, half, true)
		if !intersects {
			if bounded {
				for _, k := range present {
					p.Cache.clear(k)
				}
			}
			continue
		}
		if complete {
			keys := present
			if !bounded {
				keys = p.forcePresent(v)
			}
			for _, k := range keys {
				p.Cache.set(k, now)
				insert(k)
			}
			continue
		}

		axis := v.longestAxis()
		a, b := splitAtMidpoint(v, axis)
		children := []volume{a, b}
		p.RNG.Shuffle(2, func(i, j int) { children[i], children[j] = children[j], children[i] })
		worklist = append(worklist, children...)
	}

	return Result{Visible: visible, Skipped: skipped}
}

// scanPresent enumerates the occupied voxels within v when v is small
// enough to make that cheap. bounded reports whether the enumeration ran;
// when it didn't (v too large) present is nil and callers must fall
// through to the plane test instead of trusting an empty result.
func (p Params) scanPresent(v volume) (present []voxel.Key, bounded bool) {
	if v.voxelCount() > maxEnumeratedVolume {
		return nil, false
	}
	v.forEachKey(func(k voxel.Key) {
		if p.Grid.VoxelAt(k) != nil {
			present = append(present, k)
		}
	})
	return present, true
}

// forcePresent enumerates occupied voxels regardless of volume size, used
// only on the completely-inside path where every contained voxel must be
// marked, which happens rarely relative to the scan short-circuit above.
func (p Params) forcePresent(v volume) []voxel.Key {
	var present []voxel.Key
	v.forEachKey(func(k voxel.Key) {
		if p.Grid.VoxelAt(k) != nil {
			present = append(present, k)
		}
	})
	return present
}

func (p Params) allWithinGrace(now time.Time, keys []voxel.Key) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		last, ok := p.Cache.get(k)
		if !ok || !(now.Sub(last) < jitteredGrace(p.GraceWindow, p.RNG)) {
			return false
		}
	}
	return true
}

// staleReuse is the best-effort fallback applied to worklist entries left
// over once the search time budget is exhausted: present voxels with a
// live cache entry are still marked visible, everything else is simply
// counted as skipped.
func (p Params) staleReuse(now time.Time, v volume, insert func(voxel.Key)) int {
	count := 0
	present, bounded := p.scanPresent(v)
	if !bounded {
		// Too large to enumerate; count it as one skipped unit of work
		// rather than walking it fully under an already-blown budget.
		return 1
	}
	for _, k := range present {
		if last, ok := p.Cache.get(k); ok && now.Sub(last) < p.GraceWindow {
			insert(k)
		} else {
			count++
		}
	}
	if len(present) == 0 {
		count++
	}
	return count
}
