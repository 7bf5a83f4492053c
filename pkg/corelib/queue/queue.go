// Package queue implements the Queue Manager: per-queue admission control
// that starts pending tasks as concurrency budget frees up, either on a
// periodic tick or immediately after a task finishes.
//
// It runs as a single background goroutine driven by channels (the
// active-object pattern), rather than having every caller poll or lock a
// shared data structure directly.
package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// tickInterval is the periodic scheduling cadence — at most once a second,
// so a task that just freed up concurrency budget doesn't wait long for
// its replacement to start.
const tickInterval = time.Second

// DefaultQueueName is the built-in queue auto-created on first use.
const DefaultQueueName = "Default"

// DefaultMaxConcurrent is the default queue's admission budget.
const DefaultMaxConcurrent = 3

// TaskView is the Queue Manager's read of one task, enough to rank and
// admit it without depending on store's row types directly.
type TaskView struct {
	ID        corelib.ID
	QueueID   corelib.ID
	Status    corelib.TaskStatus
	Priority  int
	CreatedAt time.Time
}

// QueueView is the Queue Manager's read of one queue's configuration.
type QueueView struct {
	ID            corelib.ID
	Name          string
	IsActive      bool
	MaxConcurrent int
	Mode          corelib.QueueMode
}

// Starter begins a task's Task Coordinator run. Implementations should
// launch the coordinator asynchronously (e.g. in a goroutine) and report
// completion back through Manager.NotifyTaskDone; Start itself must not
// block the scheduling tick.
type Starter interface {
	StartTask(taskID corelib.ID) error
}

// Repository is the persisted view the Queue Manager schedules over.
type Repository interface {
	ListQueues() ([]QueueView, error)
	ListTasksInQueue(queueID corelib.ID) ([]TaskView, error)
}

// Manager runs the per-queue admission loop. It owns no mutable task
// list; every tick it re-reads Repository for a fresh view rather than
// trusting cached state, so a row edited directly in storage is picked
// up on the next tick without any extra invalidation path.
type Manager struct {
	repo    Repository
	starter Starter

	tickCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Manager. Call Run to start its background loop.
func New(repo Repository, starter Starter) *Manager {
	return &Manager{
		repo:    repo,
		starter: starter,
		tickCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run drives the scheduling loop until ctx is cancelled or Stop is
// called. Intended to be run in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.scheduleAllQueues()
		case <-m.tickCh:
			m.scheduleAllQueues()
		}
	}
}

// Stop halts the scheduling loop and waits for Run to return.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

// NotifyTaskDone is the Coordinator's completion/failure hook: it re-runs
// scheduling immediately rather than waiting for the next periodic tick.
func (m *Manager) NotifyTaskDone(corelib.ID, corelib.TaskStatus) {
	m.RequestTick()
}

// RequestTick asks for an out-of-band scheduling pass (e.g. after a new
// task is inserted), coalescing with any already-pending request.
func (m *Manager) RequestTick() {
	select {
	case m.tickCh <- struct{}{}:
	default:
	}
}

func (m *Manager) scheduleAllQueues() {
	queues, err := m.repo.ListQueues()
	if err != nil {
		return
	}
	for _, q := range queues {
		m.scheduleQueue(q)
	}
}

// scheduleQueue admits as many pending tasks into a single queue as its
// concurrency budget allows, in priority order.
func (m *Manager) scheduleQueue(q QueueView) {
	if !q.IsActive {
		return
	}

	tasks, err := m.repo.ListTasksInQueue(q.ID)
	if err != nil {
		return
	}

	active := 0
	var pending []TaskView
	for _, t := range tasks {
		switch t.Status {
		case corelib.StatusRunning, corelib.StatusConnecting:
			active++
		case corelib.StatusPending:
			pending = append(pending, t)
		}
	}

	maxConcurrent := q.MaxConcurrent
	if q.Mode == corelib.ModeSequential {
		maxConcurrent = 1
	}
	budget := maxConcurrent - active
	if budget <= 0 {
		return
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if budget > len(pending) {
		budget = len(pending)
	}
	for _, t := range pending[:budget] {
		_ = m.starter.StartTask(t.ID)
	}
}

// ErrQueueHasActiveTasks is returned when deleting a queue that still
// owns non-terminal tasks; callers must reassign or finish those tasks
// first.
var ErrQueueHasActiveTasks = fmt.Errorf("queue owns non-terminal tasks")
