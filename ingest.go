package cullthrottle

import (
	"time"

	"github.com/gekko3d/cullthrottle/pqueue"
	"github.com/gekko3d/cullthrottle/registry"
	"github.com/gekko3d/cullthrottle/voxel"
)

// Priority formula weights, canonical per spec.md's open-question
// resolution (the legacy 80/18/2 and 80/12/8 drafts are superseded).
const (
	farPriorityScreenWeight   = 85.0
	farPriorityElapsedWeight  = 13.0
	farPriorityDistanceWeight = 2.0

	// P0Threshold separates the urgent ("p0") priority tier from ordinary
	// scheduling. Objects at or below this priority get the relaxed p0
	// update budget in IterateObjectsToUpdate.
	P0Threshold = 0.90

	parkedPriorityScale = 1e6
)

// priorityFor computes spec.md §4.5's priority score for one object.
// Smaller is more urgent (dequeued sooner).
func priorityFor(screenSize float32, elapsed, best, worst time.Duration, distance, renderDistance float32) float64 {
	switch {
	case elapsed <= best:
		return (1 - float64(screenSize)) * parkedPriorityScale
	case elapsed >= worst:
		return 0.90 - float64(screenSize)
	case distance < 30:
		return float64(distance) / 30
	default:
		elapsedFrac := float64(elapsed-best) / float64(worst-best)
		return farPriorityScreenWeight*(1-float64(screenSize)) +
			farPriorityElapsedWeight*(1-elapsedFrac) +
			farPriorityDistanceWeight*(float64(distance)/float64(renderDistance))
	}
}

// ingestResult accumulates one frame's tallies for the metrics ring and
// for the ObjectEnteredView dispatch the Scheduler performs afterward.
// objectDeltaTime itself is accumulated later, in IterateObjectsToUpdate,
// per spec.md §4.6 — ingest only prices objects, it doesn't advance their
// lastUpdateClock.
type ingestResult struct {
	skippedIngest int
	entered       []registry.Handle
}

// ingestCheckEvery bounds how often runIngest re-reads the clock to test
// its deadline, so a long visible list doesn't pay a syscall per voxel.
const ingestCheckEvery = 8

// runIngest walks visibleVoxels in order, ingesting each object exactly
// once per frame until deadline passes, after which remaining voxels are
// fast-ingested with a synthetic, voxel-index-derived priority so the
// queue still holds an approximate spatial order. now is polled
// periodically rather than snapshotted once, so a pass that genuinely
// overruns its budget actually trips fastIngest instead of only ever
// firing when the budget was already spent before the call. Returns the
// tally and leaves every priced object staged in the visible queue's
// incoming batch (the caller is responsible for EnqueueIncomingBatch).
func (s *Scheduler) runIngest(visibleVoxels []voxel.Key, now func() time.Time, deadline time.Time) ingestResult {
	result := ingestResult{}
	fastIngest := false
	current := now()
	// frameStamp is the one timestamp every object priced in this pass is
	// marked with, so the dedup check holds even as current advances.
	frameStamp := current

	for i, key := range visibleVoxels {
		if !fastIngest && i%ingestCheckEvery == 0 {
			current = now()
			if !current.Before(deadline) {
				fastIngest = true
			}
		}
		s.ingestVoxel(key, i, fastIngest, frameStamp, &result)
	}
	return result
}

func (s *Scheduler) ingestVoxel(key voxel.Key, voxelIndex int, fastIngest bool, now time.Time, result *ingestResult) {
	handles := s.grid.VoxelAt(key)
	for _, h := range handles {
		handle := registry.Handle(h)
		rec, ok := s.reg.Record(handle)
		if !ok {
			s.logger.Warnf("missing object record for handle %d in voxel %v", handle, key)
			continue
		}
		if rec.LastCheckClock.Equal(now) {
			// Straddles multiple voxels; already priced this frame.
			continue
		}
		rec.LastCheckClock = now

		if fastIngest {
			s.visibleQueue.AddToIncomingBatch(pqueue.Handle(handle), float64(voxelIndex))
			result.skippedIngest++
			continue
		}

		camPos := s.camera.Position()
		distance := rec.Pose.Position.Sub(camPos).Len()
		if distance > s.distance.renderDistance {
			continue
		}
		rec.Distance = distance

		var screenSize float32
		if distance > 0 {
			screenSize = (rec.Radius / distance) / s.tanHalfFOV()
		}

		elapsed := now.Sub(rec.LastUpdateClock) + rec.JitterOffset
		priority := priorityFor(screenSize, elapsed, s.config.BestRefreshRate, s.config.WorstRefreshRate, distance, s.distance.renderDistance)
		s.visibleQueue.AddToIncomingBatch(pqueue.Handle(handle), priority)

		if _, wasVisible := s.visibleNow[handle]; !wasVisible {
			result.entered = append(result.entered, handle)
		}
		s.visibleNow[handle] = now
	}
}
