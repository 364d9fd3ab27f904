package cullthrottle

import "github.com/gekko3d/cullthrottle/registry"

// ObjectEventFunc receives the external object the event concerns. All
// listeners are invoked fire-and-forget, outside any critical section; a
// panicking listener must not corrupt scheduler state, so dispatch always
// runs behind a recover.
type ObjectEventFunc func(obj any)

// events holds the four listener lists spec.md §6 names: entering/exiting
// the visible set, and being added to/removed from the registry.
type events struct {
	entered []ObjectEventFunc
	exited  []ObjectEventFunc
	added   []ObjectEventFunc
	removed []ObjectEventFunc
}

// OnObjectEnteredView registers a listener fired the first frame an
// object becomes visible.
func (s *Scheduler) OnObjectEnteredView(f ObjectEventFunc) {
	s.events.entered = append(s.events.entered, f)
}

// OnObjectExitedView registers a listener fired the frame an object stops
// being visible.
func (s *Scheduler) OnObjectExitedView(f ObjectEventFunc) {
	s.events.exited = append(s.events.exited, f)
}

// OnObjectAdded registers a listener fired synchronously from AddObject/
// AddPhysicsObject once registration succeeds.
func (s *Scheduler) OnObjectAdded(f ObjectEventFunc) {
	s.events.added = append(s.events.added, f)
}

// OnObjectRemoved registers a listener fired synchronously from
// RemoveObject.
func (s *Scheduler) OnObjectRemoved(f ObjectEventFunc) {
	s.events.removed = append(s.events.removed, f)
}

// hasVisibilityListener reports whether any entered/exited listener is
// attached, used to decide whether computeVisibilityOnlyOnDemand can
// skip a frame's work entirely.
func (s *Scheduler) hasVisibilityListener() bool {
	return len(s.events.entered) > 0 || len(s.events.exited) > 0
}

func dispatch(listeners []ObjectEventFunc, obj any) {
	for _, f := range listeners {
		func() {
			defer func() { _ = recover() }()
			f(obj)
		}()
	}
}

func (s *Scheduler) fireEntered(handle registry.Handle) {
	rec, ok := s.reg.Record(handle)
	if !ok {
		return
	}
	dispatch(s.events.entered, rec.Obj)
}

func (s *Scheduler) fireExited(handle registry.Handle, obj any) {
	dispatch(s.events.exited, obj)
}

func (s *Scheduler) fireAdded(obj any) {
	dispatch(s.events.added, obj)
}

func (s *Scheduler) fireRemoved(obj any) {
	dispatch(s.events.removed, obj)
}
