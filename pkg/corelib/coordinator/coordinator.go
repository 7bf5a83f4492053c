// Package coordinator implements the Task Coordinator: the heart of the
// system, driving one task's state machine, negotiating with the origin,
// partitioning segments, and supervising workers.
//
// State is tracked via an explicit TaskStatus state machine rather than
// an ad hoc stopped flag plus scattered item state, so every transition
// (running, paused, completing, failed) has one place that owns it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
	"github.com/gridfetch/gridfetch/pkg/corelib/protocol"
	"github.com/gridfetch/gridfetch/pkg/corelib/worker"
)

// maxInitialSegments caps the initial split at min(max_connections, 4)
// equal-width segments, rather than one segment per connection slot —
// leaving headroom for dynamic splitting to hand out the rest as slow
// segments reveal themselves.
const maxInitialSegments = 4

// splitPollInterval is how often Start checks whether the concurrency
// budget has room for a dynamic split after a worker finishes early.
const splitPollInterval = 200 * time.Millisecond

// Writer is the subset of sparsefile.Writer the coordinator depends on.
type Writer interface {
	SetSize(n int64) error
	WriteAt(data []byte, offset int64) (int, error)
	Close() error
}

// Limiter is the subset of ratelimit.Limiter workers acquire from.
type Limiter interface {
	Acquire(ctx context.Context, n int) error
}

// Progress is the subset of progress.Broadcaster the coordinator updates.
type Progress interface {
	Update(taskID corelib.ID, downloadedBytes, totalBytes int64)
	Remove(taskID corelib.ID)
}

// Persister is the subset of persist.Driver the coordinator drives.
type Persister interface {
	Force()
}

// TaskRecord is the coordinator's view of persistent task state, decoupled
// from store's GORM row shape so this package has no direct GORM
// dependency.
type TaskRecord struct {
	ID              corelib.ID
	SourceURL       string
	DestinationPath string
	TotalSize       int64
	Status          corelib.TaskStatus
	Validators      corelib.Validators
	Credentials     corelib.Credentials
	MaxConnections  int
	ErrorMessage    string
}

// SegmentStore persists Segment state; an adapter over store.Store lives
// in internal/app.
type SegmentStore interface {
	ReplaceSegments(taskID corelib.ID, segments []worker.Snapshot) error
	LoadSegments(taskID corelib.ID) ([]worker.Snapshot, error)
}

// TaskStore persists Task state; an adapter over store.Store lives in
// internal/app.
type TaskStore interface {
	SaveTask(t *TaskRecord) error
}

// Notifier is called once per task on a terminal transition, letting the
// Queue Manager re-run its scheduling tick.
type Notifier interface {
	NotifyTaskDone(taskID corelib.ID, status corelib.TaskStatus)
}

// Deps are the collaborators a Coordinator needs. Notifier may be nil if
// the caller does not run a Queue Manager; every other field is required.
type Deps struct {
	Downloader protocol.Downloader
	NewWriter  func(destinationPath string) (Writer, error)
	Limiter    Limiter
	Progress   Progress
	TaskStore  TaskStore
	SegStore   SegmentStore
	Notifier   Notifier
}

// Coordinator drives one task through its full lifecycle.
type Coordinator struct {
	deps Deps

	mu       sync.Mutex
	task     TaskRecord
	segments []*worker.Segment

	persist Persister
}

// New builds a Coordinator for task, wired to deps. persist may be nil if
// the caller does not need event-forced checkpointing (e.g. in tests).
func New(task TaskRecord, deps Deps, persist Persister) *Coordinator {
	return &Coordinator{task: task, deps: deps, persist: persist}
}

// Status returns the task's current status.
func (c *Coordinator) Status() corelib.TaskStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task.Status
}

// Segments returns a point-in-time snapshot of every segment.
func (c *Coordinator) Segments() []worker.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]worker.Snapshot, len(c.segments))
	for i, s := range c.segments {
		out[i] = s.Snapshot()
	}
	return out
}

func (c *Coordinator) setStatus(to corelib.TaskStatus) error {
	c.mu.Lock()
	from := c.task.Status
	if !canTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	c.task.Status = to
	task := c.task
	c.mu.Unlock()

	if err := c.deps.TaskStore.SaveTask(&task); err != nil {
		return err
	}
	if c.persist != nil {
		c.persist.Force()
	}
	return nil
}

// Start runs the full task lifecycle: probe, segment, spawn workers,
// wait, and finalize.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.setStatus(corelib.StatusConnecting); err != nil {
		return err
	}

	writer, err := c.deps.NewWriter(c.task.DestinationPath)
	if err != nil {
		return c.fail(err)
	}
	defer writer.Close()

	probe, err := c.deps.Downloader.Probe(ctx, c.task.SourceURL, c.task.Credentials)
	if err != nil {
		return c.fail(err)
	}
	if err := c.checkValidators(probe.Validators()); err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	if probe.FinalURL != "" {
		c.task.SourceURL = probe.FinalURL
	}
	c.task.Validators = probe.Validators()
	if probe.ContentLength > 0 {
		c.task.TotalSize = probe.ContentLength
	}
	task := c.task
	c.mu.Unlock()
	if err := c.deps.TaskStore.SaveTask(&task); err != nil {
		return c.fail(err)
	}

	if task.TotalSize > 0 {
		if err := writer.SetSize(task.TotalSize); err != nil {
			return c.fail(err)
		}
	}

	if err := c.setStatus(corelib.StatusRunning); err != nil {
		return err
	}

	if err := c.loadOrCreateSegments(probe); err != nil {
		return c.fail(err)
	}
	c.persistSegments()

	err = c.runWorkers(ctx, writer)
	c.persistSegments()

	// Pause() sets status to paused and then cancels ctx, so a worker
	// stopped by a pause can surface here either as context.Canceled (the
	// cancellation outran the cooperative isPaused() check) or as a nil
	// error with incomplete segments (isPaused() won the race). Both are
	// an ordinary pause, not a failure, and must never reach fail(), whose
	// paused -> error transition isn't in transition.go's edge table.
	if c.Status() == corelib.StatusPaused {
		return nil
	}
	if err != nil {
		// ctx may carry a cause more specific than plain context.Canceled —
		// e.g. Root.Cancel cancels with "cancelled by user" so that reason,
		// not the generic ctx.Err(), ends up as the task's error_message.
		if errors.Is(err, context.Canceled) {
			if cause := context.Cause(ctx); cause != nil {
				err = cause
			}
		}
		return c.fail(err)
	}
	if !c.allComplete() {
		return c.fail(fmt.Errorf("task stopped with incomplete segments"))
	}

	if statusErr := c.setStatus(corelib.StatusComplete); statusErr != nil {
		return statusErr
	}
	c.deps.Progress.Remove(c.task.ID)
	if c.deps.Notifier != nil {
		c.deps.Notifier.NotifyTaskDone(c.task.ID, corelib.StatusComplete)
	}
	return nil
}

func (c *Coordinator) checkValidators(newValidators corelib.Validators) error {
	c.mu.Lock()
	existing := c.task.Validators
	c.mu.Unlock()
	if !existing.Empty() && existing.Mismatch(newValidators) {
		return errs.ErrFileModified
	}
	return nil
}

// loadOrCreateSegments restores segments a prior run of this task left
// behind (a pause, or a process restart caught mid-download) rather than
// re-partitioning from scratch, falling back to a fresh initial split
// only when the Segment Store has nothing recorded for this task yet.
func (c *Coordinator) loadOrCreateSegments(probe protocol.ProbeResult) error {
	existing, err := c.deps.SegStore.LoadSegments(c.task.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		c.restoreSegments(existing)
		return nil
	}
	c.createInitialSegments(probe)
	return nil
}

func (c *Coordinator) restoreSegments(snaps []worker.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	segments := make([]*worker.Segment, len(snaps))
	for i, s := range snaps {
		segments[i] = worker.NewSegmentFromSnapshot(s)
	}
	c.segments = segments
}

// createInitialSegments partitions a probed resource into its starting
// set of equal-width segments.
func (c *Coordinator) createInitialSegments(probe protocol.ProbeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !probe.AcceptsRanges || probe.ContentLength <= 0 {
		c.segments = []*worker.Segment{
			worker.NewSegment(corelib.NewID(), c.task.ID, 0, -1),
		}
		return
	}

	n := maxInitialSegments
	if c.task.MaxConnections < n {
		n = c.task.MaxConnections
	}
	if n < 1 {
		n = 1
	}

	total := probe.ContentLength
	width := total / int64(n)
	segments := make([]*worker.Segment, 0, n)
	start := int64(0)
	for i := 0; i < n; i++ {
		end := start + width - 1
		if i == n-1 {
			end = total - 1
		}
		segments = append(segments, worker.NewSegment(corelib.NewID(), c.task.ID, start, end))
		start = end + 1
	}
	c.segments = segments
}

// runWorkers spawns one worker per incomplete segment, limited to
// max_connections concurrent workers, and handles dynamic in-half
// splitting while any are running. Supervision is golang.org/x/sync/errgroup
// plus a semaphore rather than a raw goroutine/sync.WaitGroup pair, so a
// single worker failure cancels its siblings without extra bookkeeping.
func (c *Coordinator) runWorkers(ctx context.Context, writer Writer) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	sem := make(chan struct{}, c.maxConnections())

	c.mu.Lock()
	pending := append([]*worker.Segment(nil), c.segments...)
	c.mu.Unlock()

	// remaining tracks in-flight workers with an atomic counter rather than
	// a sync.WaitGroup: spawn() (and thus Add-equivalent increments) keeps
	// happening from the monitor loop below as segments split, which is
	// unsafe to interleave with a blocked WaitGroup.Wait.
	var remaining int64
	done := make(chan struct{})
	var closeDone sync.Once

	spawn := func(seg *worker.Segment) {
		atomic.AddInt64(&remaining, 1)
		sem <- struct{}{}
		g.Go(func() error {
			defer func() {
				<-sem
				if atomic.AddInt64(&remaining, -1) == 0 {
					closeDone.Do(func() { close(done) })
				}
			}()
			return c.runOneSegment(gctx, seg, writer)
		})
	}
	for _, seg := range pending {
		if !seg.IsComplete() {
			spawn(seg)
		}
	}
	if atomic.LoadInt64(&remaining) == 0 {
		// Every segment was already complete (e.g. a resumed task with
		// nothing left to fetch): nothing will ever decrement remaining.
		closeDone.Do(func() { close(done) })
	}

	ticker := time.NewTicker(splitPollInterval)
	defer ticker.Stop()

monitor:
	for {
		select {
		case <-done:
			break monitor
		case <-gctx.Done():
			break monitor
		case <-ticker.C:
			if len(sem) < cap(sem) {
				if seg, ok := c.trySplit(); ok {
					spawn(seg)
				}
			}
		}
	}

	return g.Wait()
}

func (c *Coordinator) runOneSegment(ctx context.Context, seg *worker.Segment, writer Writer) error {
	w := worker.New(worker.Config{
		Segment:     seg,
		URL:         c.sourceURL(),
		Credentials: c.credentials(),
		Fetcher:     c.deps.Downloader,
		Writer:      writer,
		Limiter:     c.deps.Limiter,
		Paused:      c.isPaused,
		Progress:    func(n int64) { c.reportProgress() },
		OnUnboundedDone: func(total int64) {
			c.mu.Lock()
			c.task.TotalSize = total
			c.mu.Unlock()
		},
	})
	res := w.Run(ctx)
	c.persistSegments()
	return res.Err
}

func (c *Coordinator) trySplit() (*worker.Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := pickSplitCandidate(c.segments)
	if candidate == nil {
		return nil, false
	}
	mid := splitPoint(candidate)
	oldEnd := candidate.End()
	candidate.ShrinkEnd(mid - 1)

	// candidate's worker advances current_offset without c.mu, so by the
	// time ShrinkEnd above lands it may already be past mid. Re-read and
	// hand the new segment whichever start is later, so it skips the
	// bytes candidate had already written by this re-read; a chunk that
	// worker is still writing can still overlap the new segment's start.
	if advanced := candidate.CurrentOffset(); advanced > mid {
		mid = advanced
	}
	if mid > oldEnd {
		// candidate finished its whole remaining tail before the split
		// could land; nothing left to hand off.
		return nil, false
	}

	newSeg := worker.NewSegment(corelib.NewID(), c.task.ID, mid, oldEnd)
	c.segments = append(c.segments, newSeg)
	if c.persist != nil {
		c.persist.Force()
	}
	return newSeg, true
}

func (c *Coordinator) maxConnections() int {
	n := c.task.MaxConnections
	if n < 1 {
		n = 1
	}
	if n > 32 {
		n = 32
	}
	return n
}

func (c *Coordinator) sourceURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task.SourceURL
}

func (c *Coordinator) credentials() corelib.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task.Credentials
}

func (c *Coordinator) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task.Status == corelib.StatusPaused
}

func (c *Coordinator) allComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.segments {
		if !s.IsComplete() {
			return false
		}
	}
	return true
}

func (c *Coordinator) reportProgress() {
	c.mu.Lock()
	var downloaded int64
	for _, s := range c.segments {
		downloaded += s.CurrentOffset() - s.StartOffset
	}
	taskID, total := c.task.ID, c.task.TotalSize
	c.mu.Unlock()
	c.deps.Progress.Update(taskID, downloaded, total)
}

func (c *Coordinator) persistSegments() {
	snaps := c.Segments()
	_ = c.deps.SegStore.ReplaceSegments(c.task.ID, snaps)
	if c.persist != nil {
		c.persist.Force()
	}
}

// fail records err as the task's failure cause and transitions to error.
func (c *Coordinator) fail(cause error) error {
	c.mu.Lock()
	c.task.ErrorMessage = cause.Error()
	c.mu.Unlock()
	if err := c.setStatus(corelib.StatusError); err != nil {
		return err
	}
	if c.deps.Notifier != nil {
		c.deps.Notifier.NotifyTaskDone(c.task.ID, corelib.StatusError)
	}
	return cause
}

// Pause cooperatively stops every segment worker at its next chunk
// boundary, persists state, and transitions to paused.
func (c *Coordinator) Pause() error {
	return c.setStatus(corelib.StatusPaused)
}
