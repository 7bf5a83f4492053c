package coordinator

import (
	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/worker"
)

// splitThreshold is the "In-Half" trigger: a segment's remaining tail
// must exceed 2x256KiB to be worth bisecting. This is a fixed byte
// threshold rather than a speed-based one — simpler to reason about, and
// it doesn't need a rolling average to warm up before it can fire.
const splitThreshold = 2 * 256 * corelib.KB

// pickSplitCandidate scans incomplete, bounded segments whose remaining
// bytes exceed splitThreshold for the one with the largest remaining tail,
// breaking ties by smallest start_offset. It returns nil when no segment
// exceeds the threshold.
func pickSplitCandidate(segments []*worker.Segment) *worker.Segment {
	var best *worker.Segment
	var bestRemaining int64 = -1

	for _, seg := range segments {
		if seg.IsComplete() || seg.Unbounded() {
			continue
		}
		remaining := seg.RemainingBytes()
		if remaining <= splitThreshold {
			continue
		}
		if remaining > bestRemaining ||
			(remaining == bestRemaining && best != nil && seg.StartOffset < best.StartOffset) {
			best = seg
			bestRemaining = remaining
		}
	}
	return best
}

// splitPoint returns the midpoint offset at which to bisect seg: the
// existing segment keeps [current, mid-1], the new segment covers
// [mid, end].
func splitPoint(seg *worker.Segment) int64 {
	cur := seg.CurrentOffset()
	end := seg.End()
	return cur + (end-cur+1)/2
}
