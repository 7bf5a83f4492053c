// Package worker implements the Segment Worker: drives one byte range to
// completion against a Range Fetcher, rate-limiting and writing each
// chunk, retrying according to the fatal/retryable/throttled error split.
package worker

import (
	"sync/atomic"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// Segment is the mutable state of one half-open byte range within a task.
// CurrentOffset is updated by exactly one worker at a time; readers
// elsewhere in the coordinator must go through the atomic accessors below
// for a consistent view.
type Segment struct {
	ID            corelib.ID
	TaskID        corelib.ID
	StartOffset   int64
	endOffset     int64 // mutated under split; access via End/setEnd
	currentOffset int64 // atomic
	complete      int32 // atomic bool
}

// NewSegment constructs a Segment covering [start, end]. end < 0 means an
// unbounded segment (unknown total size).
func NewSegment(id, taskID corelib.ID, start, end int64) *Segment {
	return &Segment{ID: id, TaskID: taskID, StartOffset: start, endOffset: end, currentOffset: start}
}

// End returns the current end_offset (unbounded if negative).
func (s *Segment) End() int64 { return atomic.LoadInt64(&s.endOffset) }

func (s *Segment) setEnd(end int64) { atomic.StoreInt64(&s.endOffset, end) }

// ShrinkEnd narrows this segment's end_offset to newEnd, used by the
// coordinator when bisecting a segment for dynamic splitting. Callers
// must own the segment's split decision (not running concurrently with
// the worker that wrote end).
func (s *Segment) ShrinkEnd(newEnd int64) { s.setEnd(newEnd) }

// CurrentOffset returns the next byte the segment will receive.
func (s *Segment) CurrentOffset() int64 { return atomic.LoadInt64(&s.currentOffset) }

func (s *Segment) advance(n int64) int64 {
	return atomic.AddInt64(&s.currentOffset, n)
}

// IsComplete reports whether current_offset > end_offset, for a bounded
// segment; unbounded segments complete only when the worker observes
// natural stream end.
func (s *Segment) IsComplete() bool { return atomic.LoadInt32(&s.complete) == 1 }

func (s *Segment) markComplete() { atomic.StoreInt32(&s.complete, 1) }

// Unbounded reports whether this segment has no known end offset yet.
func (s *Segment) Unbounded() bool { return s.End() < 0 }

// RemainingBytes reports the byte count left to fetch, or -1 if unbounded.
func (s *Segment) RemainingBytes() int64 {
	end := s.End()
	if end < 0 {
		return -1
	}
	remaining := end - s.CurrentOffset() + 1
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot is an immutable read of a Segment's fields, safe to persist or
// hand across goroutines.
type Snapshot struct {
	ID            corelib.ID
	TaskID        corelib.ID
	StartOffset   int64
	EndOffset     int64
	CurrentOffset int64
	IsComplete    bool
}

// NewSegmentFromSnapshot rebuilds a Segment from a previously persisted
// Snapshot, restoring its current_offset and completion state rather than
// starting over from start_offset — used to resume a task from segments
// left over by a prior run instead of re-partitioning the resource from
// scratch.
func NewSegmentFromSnapshot(s Snapshot) *Segment {
	seg := &Segment{ID: s.ID, TaskID: s.TaskID, StartOffset: s.StartOffset, endOffset: s.EndOffset, currentOffset: s.CurrentOffset}
	if s.IsComplete {
		seg.markComplete()
	}
	return seg
}

func (s *Segment) Snapshot() Snapshot {
	return Snapshot{
		ID:            s.ID,
		TaskID:        s.TaskID,
		StartOffset:   s.StartOffset,
		EndOffset:     s.End(),
		CurrentOffset: s.CurrentOffset(),
		IsComplete:    s.IsComplete(),
	}
}
