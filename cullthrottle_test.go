package cullthrottle

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/cullthrottle/registry"
)

type fakeCamera struct {
	pos    mgl32.Vec3
	rot    mgl32.Quat
	fov    float32
	aspect float32
}

func (c *fakeCamera) Position() mgl32.Vec3    { return c.pos }
func (c *fakeCamera) Orientation() mgl32.Quat { return c.rot }
func (c *fakeCamera) FOVDegrees() float32     { return c.fov }
func (c *fakeCamera) Aspect() float32         { return c.aspect }

func newFakeCamera() *fakeCamera {
	return &fakeCamera{pos: mgl32.Vec3{0, 0, 0}, rot: mgl32.QuatIdent(), fov: 90, aspect: 1}
}

type noopObserver struct{}

func (noopObserver) Dispose() {}

type posAdapter struct {
	kind registry.Kind
	pose registry.Pose
}

func (a *posAdapter) Kind() registry.Kind { return a.kind }

func (a *posAdapter) Resolve(obj any) (registry.Pose, registry.Bounds, bool) {
	p, ok := obj.(*mgl32.Vec3)
	if !ok {
		return registry.Pose{}, registry.Bounds{}, false
	}
	return registry.Pose{Position: *p, Rotation: mgl32.QuatIdent()},
		registry.Bounds{HalfExtent: mgl32.Vec3{0.2, 0.2, 0.2}, Radius: 0.3}, true
}

func (a *posAdapter) Observe(obj any, onChange registry.ChangeFunc) (registry.ObserverHandle, error) {
	return noopObserver{}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeCamera, *frozenClock) {
	t.Helper()
	cam := newFakeCamera()
	adapters := map[registry.Kind]registry.DimensionAdapter{
		registry.KindRigidBody: &posAdapter{kind: registry.KindRigidBody},
	}
	s, err := New(cam, adapters, DefaultConfig())
	require.NoError(t, err)

	clock := NewFrozenClock(time.Unix(0, 0))
	s.SetClock(clock)
	return s, cam, clock
}

func TestAddObjectThenTickMakesItVisible(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	obj := &mgl32.Vec3{0, 0, -50}

	_, err := s.AddObject(obj)
	require.NoError(t, err)

	s.Tick()
	visible := s.GetVisibleObjects()
	require.Len(t, visible, 1)
	assert.Same(t, obj, visible[0])
}

func TestAddObjectFiresAddedEvent(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	var fired any
	s.OnObjectAdded(func(obj any) { fired = obj })

	obj := &mgl32.Vec3{0, 0, -10}
	_, err := s.AddObject(obj)
	require.NoError(t, err)
	assert.Same(t, obj, fired)
}

func TestRemoveObjectFiresRemovedEvent(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	var fired any
	s.OnObjectRemoved(func(obj any) { fired = obj })

	obj := &mgl32.Vec3{0, 0, -10}
	handle, err := s.AddObject(obj)
	require.NoError(t, err)

	s.RemoveObject(handle)
	assert.Same(t, obj, fired)
}

func TestObjectEnteredViewFiresOnFirstSighting(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	var entered []any
	s.OnObjectEnteredView(func(obj any) { entered = append(entered, obj) })

	obj := &mgl32.Vec3{0, 0, -50}
	_, err := s.AddObject(obj)
	require.NoError(t, err)

	s.Tick()
	require.Len(t, entered, 1)
	assert.Same(t, obj, entered[0])
}

func TestObjectExitedViewFiresAfterItLeavesFrustum(t *testing.T) {
	s, _, clock := newTestScheduler(t)
	var exited []any
	s.OnObjectExitedView(func(obj any) { exited = append(exited, obj) })

	obj := &mgl32.Vec3{0, 0, -50}
	handle, err := s.AddObject(obj)
	require.NoError(t, err)

	s.Tick()
	require.Empty(t, exited)

	rec, ok := s.reg.Record(handle)
	require.True(t, ok)
	rec.Pose.Position = mgl32.Vec3{0, 0, 5000}

	clock.Advance(time.Millisecond)
	s.Tick()
	require.Len(t, exited, 1)
	assert.Same(t, obj, exited[0])
}

func TestIterateObjectsToUpdateYieldsAddedObject(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	obj := &mgl32.Vec3{0, 0, -50}
	_, err := s.AddObject(obj)
	require.NoError(t, err)

	s.Tick()

	var got []UpdateItem
	for item := range s.IterateObjectsToUpdate() {
		got = append(got, item)
	}
	require.Len(t, got, 1)
	assert.Same(t, obj, got[0].Object)
}

func TestIterateObjectsToUpdateStopsWhenCallerBreaks(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	for i := 0; i < 5; i++ {
		obj := &mgl32.Vec3{float32(i) * 0.01, 0, -50}
		_, err := s.AddObject(obj)
		require.NoError(t, err)
	}

	s.Tick()

	count := 0
	for range s.IterateObjectsToUpdate() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestComputeVisibilityOnlyOnDemandDefersWork(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.SetComputeVisibilityOnlyOnDemand(true)

	obj := &mgl32.Vec3{0, 0, -50}
	_, err := s.AddObject(obj)
	require.NoError(t, err)

	s.Tick()
	assert.False(t, s.ranThisFrame, "with no visibility listener attached, Tick must defer the frame's work")

	visible := s.GetVisibleObjects()
	assert.True(t, s.ranThisFrame, "GetVisibleObjects must trigger the deferred frame")
	require.Len(t, visible, 1)
}

func TestSetVoxelSizeRebuildsMembership(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	obj := &mgl32.Vec3{12, 0, -12}
	handle, err := s.AddObject(obj)
	require.NoError(t, err)

	require.NoError(t, s.SetVoxelSize(5))

	rec, ok := s.reg.Record(handle)
	require.True(t, ok)
	assert.NotEmpty(t, rec.VoxelKeys)
	for k := range rec.VoxelKeys {
		assert.Equal(t, int32(2), k.I)
		assert.Equal(t, int32(0), k.J)
		assert.Equal(t, int32(-3), k.K)
	}
}

func TestAddObjectNotAddableWhenNoAdapterMatches(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_, err := s.AddObject("not a *mgl32.Vec3")
	require.Error(t, err)
}
