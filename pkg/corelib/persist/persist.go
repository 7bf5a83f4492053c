// Package persist implements the Persistence Driver: periodic and
// event-triggered checkpointing of a running task's state, as a reusable
// ticking driver with a debounced Force() path for save-on-event callers.
package persist

import (
	"context"
	"sync"
	"time"
)

// SaveFunc performs one checkpoint write (typically a store.Transact
// call saving a task row and its segment rows together).
type SaveFunc func() error

// minForceGap is the "don't thrash the database" floor: forced saves
// triggered in quick succession collapse into one commit every 200ms.
const minForceGap = 200 * time.Millisecond

// Driver runs while a task is running, saving on a periodic tick
// (persistence_interval, default 1s) and on demand via Force, with
// forced saves debounced to at most one per 200ms.
type Driver struct {
	interval time.Duration
	save     SaveFunc

	mu       sync.Mutex
	lastSave time.Time
	pending  bool

	// wg tracks in-flight delayed saves spawned by handleForce, so Stop
	// can wait for them rather than returning while one is still able to
	// fire.
	wg sync.WaitGroup

	forceCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Driver. interval <= 0 defaults to 1s, matching spec's
// design default for persistence_interval.
func New(interval time.Duration, save SaveFunc) *Driver {
	if interval <= 0 {
		interval = time.Second
	}
	return &Driver{
		interval: interval,
		save:     save,
		forceCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run blocks, ticking and saving until ctx is canceled or Stop is called.
// Intended to run in its own goroutine for the lifetime of a running
// task.
func (d *Driver) Run(ctx context.Context) {
	defer close(d.doneCh)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.saveNow()
		case <-d.forceCh:
			d.handleForce()
		}
	}
}

// Force requests an out-of-band save (on status transitions, segment
// completion, pause, or dynamic split). Non-blocking; coalesces with
// any already-pending force request.
func (d *Driver) Force() {
	select {
	case d.forceCh <- struct{}{}:
	default:
	}
}

// Stop halts the Run loop and waits for any in-flight debounced save
// spawned by Force to either fire or be cancelled, so no checkpoint write
// lands after Stop returns. Safe to call once; Run's caller should also
// cancel its context on task completion.
func (d *Driver) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.wg.Wait()
}

func (d *Driver) saveNow() {
	d.mu.Lock()
	d.lastSave = time.Now()
	d.pending = false
	d.mu.Unlock()
	_ = d.save()
}

func (d *Driver) handleForce() {
	d.mu.Lock()
	since := time.Since(d.lastSave)
	if since >= minForceGap {
		d.lastSave = time.Now()
		d.pending = false
		d.mu.Unlock()
		_ = d.save()
		return
	}
	if d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = true
	remaining := minForceGap - since
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-timer.C:
			d.saveNow()
		case <-d.stopCh:
		}
	}()
}
