// Package pqueue implements the time-budgeted update scheduler's priority
// queue: a min-heap over object handles ordered by ascending priority
// score, supporting O(log n) priority updates by handle.
//
// Grounded on the teacher's A* open set (ai_nav_utils.go): a heap.Interface
// implementation whose items track their own heap index so heap.Fix can
// relocate an already-queued item in place instead of removing and
// re-pushing it.
package pqueue

import "container/heap"

// Handle identifies a queued object. The queue never dereferences it.
type Handle uint64

type entry struct {
	handle   Handle
	priority float64
	index    int
}

type innerHeap []*entry

func (h innerHeap) Len() int { return len(h) }

// Less orders ascending by priority: Dequeue pops the lowest-priority
// (most urgent) entry first, matching spec.md's "lower score updates
// sooner" convention.
func (h innerHeap) Less(i, j int) bool { return h[i].priority < h[j].priority }

func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *innerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// ErrEmptyQueue is the value panicked by Dequeue and Peek when the queue
// holds no entries. Popping or peeking an empty scheduling queue is a
// programming error in every caller in this module, not a recoverable
// runtime condition, so it is surfaced as a panic rather than an error
// return.
var ErrEmptyQueue = errEmptyQueue{}

type errEmptyQueue struct{}

func (errEmptyQueue) Error() string { return "pqueue: pop/peek on empty queue" }

type incoming struct {
	handle   Handle
	priority float64
}

// PriorityQueue is a min-heap keyed by priority, deduplicated by Handle.
// A handle already present is moved via heap.Fix rather than duplicated.
// Not safe for concurrent use; callers serialize access (the scheduler
// owns exactly one instance and touches it from a single goroutine per
// frame).
//
// Alongside the heap itself, PriorityQueue stages an incoming batch: the
// ingest hot loop appends to it with AddToIncomingBatch instead of paying
// a sift-up per object, then the batch is folded into the heap in one
// O(n) build via EnqueueIncomingBatch.
type PriorityQueue struct {
	items    innerHeap
	indices  map[Handle]*entry
	incoming []incoming
}

// New returns an empty priority queue.
func New() *PriorityQueue {
	return &PriorityQueue{
		indices: make(map[Handle]*entry),
	}
}

// Len returns the number of entries currently queued.
func (q *PriorityQueue) Len() int { return len(q.items) }

// IsEmpty reports whether the queue holds no entries.
func (q *PriorityQueue) IsEmpty() bool { return len(q.items) == 0 }

// Contains reports whether handle is currently queued.
func (q *PriorityQueue) Contains(handle Handle) bool {
	_, ok := q.indices[handle]
	return ok
}

// Enqueue inserts handle at priority, or repositions it if already
// present. This is the single entry point used both for first-time
// scheduling and for priority refresh.
func (q *PriorityQueue) Enqueue(handle Handle, priority float64) {
	if e, ok := q.indices[handle]; ok {
		e.priority = priority
		heap.Fix(&q.items, e.index)
		return
	}
	e := &entry{handle: handle, priority: priority}
	heap.Push(&q.items, e)
	q.indices[handle] = e
}

// Update is an alias for Enqueue retained for call sites that only ever
// reprioritize an already-queued handle; behaviorally identical.
func (q *PriorityQueue) Update(handle Handle, priority float64) {
	q.Enqueue(handle, priority)
}

// Remove evicts handle from the queue if present. A miss is a no-op.
func (q *PriorityQueue) Remove(handle Handle) {
	e, ok := q.indices[handle]
	if !ok {
		return
	}
	heap.Remove(&q.items, e.index)
	delete(q.indices, handle)
}

// Dequeue removes and returns the lowest-priority handle. Panics with
// ErrEmptyQueue if the queue is empty.
func (q *PriorityQueue) Dequeue() Handle {
	if len(q.items) == 0 {
		panic(ErrEmptyQueue)
	}
	e := heap.Pop(&q.items).(*entry)
	delete(q.indices, e.handle)
	return e.handle
}

// Peek returns the lowest-priority handle without removing it. Panics
// with ErrEmptyQueue if the queue is empty.
func (q *PriorityQueue) Peek() Handle {
	if len(q.items) == 0 {
		panic(ErrEmptyQueue)
	}
	return q.items[0].handle
}

// PeekPriority returns the lowest-priority handle's priority score.
// Panics with ErrEmptyQueue if the queue is empty.
func (q *PriorityQueue) PeekPriority() float64 {
	if len(q.items) == 0 {
		panic(ErrEmptyQueue)
	}
	return q.items[0].priority
}

// Priority returns the priority currently stored for handle, and whether
// handle is queued at all.
func (q *PriorityQueue) Priority(handle Handle) (float64, bool) {
	e, ok := q.indices[handle]
	if !ok {
		return 0, false
	}
	return e.priority, true
}

// BatchEnqueue appends every (handle, priority) pair directly to the heap
// array, skipping ones that are already present, then heapifies in one
// O(n) pass (sift-down from the last parent). Intended for building the
// heap from scratch — e.g. fast-ingest's synthetic-priority path — not
// for incremental updates, which should use Enqueue or the incoming-batch
// staging API below.
func (q *PriorityQueue) BatchEnqueue(handles []Handle, priorities []float64) {
	for i, h := range handles {
		if _, ok := q.indices[h]; ok {
			continue
		}
		e := &entry{handle: h, priority: priorities[i], index: len(q.items)}
		q.items = append(q.items, e)
		q.indices[h] = e
	}
	heap.Init(&q.items)
}

// AddToIncomingBatch stages (handle, priority) without touching the heap.
func (q *PriorityQueue) AddToIncomingBatch(handle Handle, priority float64) {
	q.incoming = append(q.incoming, incoming{handle: handle, priority: priority})
}

// AddMultipleToIncomingBatch stages a slice of (handle, priority) pairs in
// one call, parallel-array style to match the ingest loop's working set.
func (q *PriorityQueue) AddMultipleToIncomingBatch(handles []Handle, priorities []float64) {
	for i, h := range handles {
		q.incoming = append(q.incoming, incoming{handle: h, priority: priorities[i]})
	}
}

// EnqueueIncomingBatch folds every staged entry into the heap via
// BatchEnqueue and clears the staging area. A handle staged more than
// once keeps only its first priority, and a handle already in the heap
// keeps its queued priority (BatchEnqueue skips present handles, unlike
// Enqueue, which repositions them); callers that want to reprioritize
// an already-queued handle should call Enqueue directly instead.
func (q *PriorityQueue) EnqueueIncomingBatch() {
	if len(q.incoming) == 0 {
		return
	}
	handles := make([]Handle, len(q.incoming))
	priorities := make([]float64, len(q.incoming))
	for i, e := range q.incoming {
		handles[i] = e.handle
		priorities[i] = e.priority
	}
	q.BatchEnqueue(handles, priorities)
	q.incoming = q.incoming[:0]
}

// ClearIncomingBatch discards any staged entries without enqueueing them.
func (q *PriorityQueue) ClearIncomingBatch() {
	q.incoming = q.incoming[:0]
}

// IncomingBatchLen reports how many entries are currently staged.
func (q *PriorityQueue) IncomingBatchLen() int { return len(q.incoming) }

// Entry is a read-only (handle, priority) pair, returned by IncomingSnapshot
// so callers can inspect staged entries without reaching into queue
// internals.
type Entry struct {
	Handle   Handle
	Priority float64
}

// IncomingSnapshot returns a copy of the currently staged incoming batch.
// Mutating the returned slice has no effect on the queue.
func (q *PriorityQueue) IncomingSnapshot() []Entry {
	out := make([]Entry, len(q.incoming))
	for i, e := range q.incoming {
		out[i] = Entry{Handle: e.handle, Priority: e.priority}
	}
	return out
}

// Clear empties the heap and its handle index, discarding every queued
// entry without returning them. Staged incoming entries are untouched; call
// ClearIncomingBatch separately if those should be dropped too.
func (q *PriorityQueue) Clear() {
	q.items = q.items[:0]
	for h := range q.indices {
		delete(q.indices, h)
	}
}
