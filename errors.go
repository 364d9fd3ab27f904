package cullthrottle

import (
	"github.com/gekko3d/cullthrottle/pqueue"
	"github.com/gekko3d/cullthrottle/registry"
)

// ErrNotAddable is returned by AddObject/AddPhysicsObject when the
// configured DimensionAdapter cannot resolve a pose or bounding box for
// the supplied object. Always wrapped with additional context via
// fmt.Errorf("...: %w", ErrNotAddable); callers should match it with
// errors.Is rather than comparing directly. Re-exported from registry,
// which is where the wrapping actually happens.
var ErrNotAddable = registry.ErrNotAddable

// ErrEmptyQueue is the panic value used by the priority queue when
// Dequeue or Peek is called on an empty queue. Per spec.md §7, popping an
// empty scheduling queue is a programming error in every call site in
// this module, not a recoverable runtime condition. It is the same value
// pqueue.PriorityQueue panics with; re-exported here so callers don't
// need to import pqueue just to recover() and compare.
var ErrEmptyQueue = pqueue.ErrEmptyQueue
