// Package progress implements the Progress Broadcaster: a shared,
// in-memory mapping from task to a throttled progress snapshot, built as
// a passive, poll-friendly map rather than a push-callback struct so any
// number of readers (CLI bars, a metrics exporter, native-host replies)
// can consult it without registering a handler.
package progress

import (
	"sync"
	"time"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// throttleInterval caps broadcaster updates to one per task every 50ms,
// cheap enough for any reasonable poller without flooding on tight loops.
const throttleInterval = 50 * time.Millisecond

// Snapshot is a point-in-time read of one task's progress.
type Snapshot struct {
	DownloadedBytes int64
	TotalBytes      int64
	BytesPerSecond  float64
}

type entry struct {
	mu          sync.Mutex
	snapshot    Snapshot
	lastUpdate  time.Time
	lastBytes   int64
	lastBytesAt time.Time
}

// Broadcaster is process-global, single-writer-per-row by convention:
// each task's Update calls come from exactly one Task Coordinator at a
// time.
type Broadcaster struct {
	tasks sync.Map // corelib.ID -> *entry
}

// New builds an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) entryFor(taskID corelib.ID) *entry {
	v, _ := b.tasks.LoadOrStore(taskID, &entry{})
	return v.(*entry)
}

// Update reports a task's cumulative downloaded bytes and total size (0 if
// unknown), recomputing bytes-per-second from the wall-clock delta since
// the last accepted update. Calls within throttleInterval of the last
// accepted update for the same task are dropped, except the update is
// always accepted if this is the task's first report.
func (b *Broadcaster) Update(taskID corelib.ID, downloadedBytes, totalBytes int64) {
	e := b.entryFor(taskID)
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastUpdate.IsZero() && now.Sub(e.lastUpdate) < throttleInterval {
		return
	}

	bps := 0.0
	if !e.lastBytesAt.IsZero() {
		if dt := now.Sub(e.lastBytesAt).Seconds(); dt > 0 {
			bps = float64(downloadedBytes-e.lastBytes) / dt
		}
	}

	e.snapshot = Snapshot{DownloadedBytes: downloadedBytes, TotalBytes: totalBytes, BytesPerSecond: bps}
	e.lastUpdate = now
	e.lastBytes = downloadedBytes
	e.lastBytesAt = now
}

// Snapshot reads the current progress for a task.
func (b *Broadcaster) Snapshot(taskID corelib.ID) (Snapshot, bool) {
	v, ok := b.tasks.Load(taskID)
	if !ok {
		return Snapshot{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot, true
}

// Remove clears a task's row on terminal transition (complete or error).
func (b *Broadcaster) Remove(taskID corelib.ID) {
	b.tasks.Delete(taskID)
}

// All returns a snapshot of every tracked task, for bulk UI reads.
func (b *Broadcaster) All() map[corelib.ID]Snapshot {
	out := make(map[corelib.ID]Snapshot)
	b.tasks.Range(func(key, value any) bool {
		id := key.(corelib.ID)
		e := value.(*entry)
		e.mu.Lock()
		out[id] = e.snapshot
		e.mu.Unlock()
		return true
	})
	return out
}
