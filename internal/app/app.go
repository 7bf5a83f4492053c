// Package app wires the Persistent Store, the global Rate Limiter, the
// Queue Manager, and the Progress Broadcaster into a single application
// root, then exposes the add/start/pause/resume/cancel ingest contract
// over them.
//
// Root is the one long-lived object a command constructs and threads
// everywhere, built as an owned component set rather than package-level
// globals so multiple roots can coexist (tests, multiple commands in one
// process) without stepping on each other.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/coordinator"
	"github.com/gridfetch/gridfetch/pkg/corelib/filename"
	"github.com/gridfetch/gridfetch/pkg/corelib/persist"
	"github.com/gridfetch/gridfetch/pkg/corelib/progress"
	"github.com/gridfetch/gridfetch/pkg/corelib/protocol"
	"github.com/gridfetch/gridfetch/pkg/corelib/queue"
	"github.com/gridfetch/gridfetch/pkg/corelib/ratelimit"
	"github.com/gridfetch/gridfetch/pkg/corelib/sparsefile"
	"github.com/gridfetch/gridfetch/pkg/corelib/store"
	"github.com/gridfetch/gridfetch/pkg/corelib/worker"
	"github.com/gridfetch/gridfetch/pkg/logger"
)

// defaultConnectionCount is used when add_download's options omit
// connection_count.
const defaultConnectionCount = 4

// persistInterval is the Persistence Driver's unconditional save cadence.
const persistInterval = time.Second

// AddOptions is the options bag accepted by AddDownload.
type AddOptions struct {
	ConnectionCount      int
	QueueID              corelib.ID
	StartPaused          bool
	SuggestedFilename    string
	Cookies              string
	UserAgent            string
	Referer              string
	DestinationDirectory string
}

// Root is the application's single composition point: one Store, one
// Rate Limiter, one Queue Manager, one Progress Broadcaster, shared by
// every Task Coordinator it spawns.
type Root struct {
	store     *store.Store
	limiter   *ratelimit.Limiter
	broadcast *progress.Broadcaster
	queueMgr  *queue.Manager
	router    *protocol.SchemeRouter
	fs        afero.Fs
	log       logger.Logger

	mu           sync.Mutex
	coordinators map[corelib.ID]*coordinator.Coordinator
	cancels      map[corelib.ID]context.CancelCauseFunc

	metricsServer *http.Server
}

// New constructs a Root backed by a Store opened at dbPath. Call Run to
// start its background Queue Manager loop. An empty proxyURL talks to
// every source directly; otherwise it's an http://, https://, or
// socks5:// proxy that every HTTP/HTTPS fetch is routed through.
func New(dbPath string, log logger.Logger, proxyURL string) (*Root, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	proxyClient, err := protocol.NewProxyClient(proxyURL)
	if err != nil {
		st.Close()
		return nil, err
	}
	r := &Root{
		store:        st,
		limiter:      ratelimit.NewLimiter(),
		broadcast:    progress.New(),
		router:       protocol.NewSchemeRouterWithClient(proxyClient),
		fs:           afero.NewOsFs(),
		log:          log,
		coordinators: make(map[corelib.ID]*coordinator.Coordinator),
		cancels:      make(map[corelib.ID]context.CancelCauseFunc),
	}
	r.queueMgr = queue.New(&repoAdapter{store: st}, &starterAdapter{root: r})
	if err := r.ensureDefaultQueue(); err != nil {
		st.Close()
		return nil, err
	}
	return r, nil
}

// Limiter exposes the process-wide Rate Limiter for CLI configuration.
func (r *Root) Limiter() *ratelimit.Limiter { return r.limiter }

// Broadcaster exposes the Progress Broadcaster for read-only consumers.
func (r *Root) Broadcaster() *progress.Broadcaster { return r.broadcast }

// Run starts the Queue Manager's scheduling loop and re-admits any
// non-terminal task left over from a previous process: on restart, such
// a task is re-entered as pending and re-admitted via the Queue Manager
// rather than resumed mid-flight, since its in-memory worker state is
// gone.
func (r *Root) Run(ctx context.Context) error {
	if err := r.resetNonTerminalTasks(); err != nil {
		return err
	}
	go r.queueMgr.Run(ctx)
	r.queueMgr.RequestTick()
	return nil
}

// Close stops the Queue Manager, shuts down the metrics listener (if
// running), closes the Logger's backends, and closes the Store.
func (r *Root) Close() error {
	r.queueMgr.Stop()
	if r.metricsServer != nil {
		_ = r.metricsServer.Close()
	}
	logErr := r.log.Close()
	if storeErr := r.store.Close(); storeErr != nil {
		return storeErr
	}
	return logErr
}

// ServeMetrics starts an HTTP server at addr exposing the Progress
// Broadcaster's live snapshots as Prometheus metrics at /metrics. It
// returns once the listener is bound; the server itself runs in a
// background goroutine until Close.
func (r *Root) ServeMetrics(addr string) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(progress.NewCollector(r.broadcast))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux}
	r.metricsServer = srv
	go srv.Serve(ln)
	return nil
}

func (r *Root) resetNonTerminalTasks() error {
	tasks, err := r.store.FetchTasksWhere("status in (?)", []string{
		string(corelib.StatusConnecting), string(corelib.StatusRunning),
	})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		t.Status = corelib.StatusPending
		if err := r.store.SaveTask(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Root) ensureDefaultQueue() error {
	queues, err := r.store.FetchAllQueues()
	if err != nil {
		return err
	}
	for _, q := range queues {
		if q.Name == queue.DefaultQueueName {
			return nil
		}
	}
	return r.store.InsertQueue(&store.Queue{
		ID:            corelib.NewID(),
		Name:          queue.DefaultQueueName,
		IsActive:      true,
		MaxConcurrent: queue.DefaultMaxConcurrent,
		Mode:          corelib.ModeParallel,
	})
}

func (r *Root) defaultQueueID() (corelib.ID, error) {
	queues, err := r.store.FetchAllQueues()
	if err != nil {
		return "", err
	}
	for _, q := range queues {
		if q.Name == queue.DefaultQueueName {
			return q.ID, nil
		}
	}
	return "", fmt.Errorf("default queue missing")
}

// Queues reports every queue the Persistent Store knows about.
func (r *Root) Queues() ([]*store.Queue, error) {
	return r.store.FetchAllQueues()
}

// QueueByName looks up a queue by its display name.
func (r *Root) QueueByName(name string) (*store.Queue, error) {
	queues, err := r.store.FetchAllQueues()
	if err != nil {
		return nil, err
	}
	for _, q := range queues {
		if q.Name == name {
			return q, nil
		}
	}
	return nil, fmt.Errorf("no queue named %q", name)
}

// CreateQueue adds a new queue with the given admission configuration.
func (r *Root) CreateQueue(name string, maxConcurrent int, mode corelib.QueueMode) (corelib.ID, error) {
	q := &store.Queue{
		ID:            corelib.NewID(),
		Name:          name,
		IsActive:      true,
		MaxConcurrent: maxConcurrent,
		Mode:          mode,
	}
	if err := r.store.InsertQueue(q); err != nil {
		return "", err
	}
	return q.ID, nil
}

// SetQueueConfig updates a queue's admission budget, concurrency mode, and
// active flag, then wakes the Queue Manager to re-evaluate admission under
// the new configuration.
func (r *Root) SetQueueConfig(queueID corelib.ID, maxConcurrent int, mode corelib.QueueMode, isActive bool) error {
	q, err := r.store.FetchQueueByID(queueID)
	if err != nil {
		return err
	}
	q.MaxConcurrent = maxConcurrent
	q.Mode = mode
	q.IsActive = isActive
	if err := r.store.SaveQueue(q); err != nil {
		return err
	}
	r.queueMgr.RequestTick()
	return nil
}

// AddDownload resolves the filename via the precedence chain in
// pkg/corelib/filename, persists a new pending Task row, and wakes the
// Queue Manager for an immediate scheduling pass.
func (r *Root) AddDownload(ctx context.Context, rawURL string, opts AddOptions) (corelib.ID, error) {
	creds := corelib.Credentials{Cookies: opts.Cookies, UserAgent: opts.UserAgent, Referer: opts.Referer}

	probe, err := r.router.Probe(ctx, rawURL, creds)
	if err != nil {
		return "", err
	}

	name := filename.Derive(opts.SuggestedFilename, "", probe.FinalURL, probe.ContentType)
	if probe.SuggestedFilename != "" && opts.SuggestedFilename == "" {
		name = filename.Derive("", probe.SuggestedFilename, probe.FinalURL, probe.ContentType)
	}
	destPath := filepath.Join(opts.DestinationDirectory, name)

	queueID := opts.QueueID
	if queueID == "" {
		queueID, err = r.defaultQueueID()
		if err != nil {
			return "", err
		}
	}

	connCount := opts.ConnectionCount
	if connCount < 1 {
		connCount = defaultConnectionCount
	}
	if connCount > 32 {
		connCount = 32
	}

	task := &store.Task{
		ID:              corelib.NewID(),
		SourceURL:       rawURL,
		DestinationPath: destPath,
		Status:          corelib.StatusPending,
		Priority:        0,
		CreatedAt:       time.Now(),
		QueueID:         queueID,
		MaxConnections:  connCount,
	}
	if err := r.store.InsertTask(task); err != nil {
		return "", err
	}
	if !opts.StartPaused {
		r.queueMgr.RequestTick()
	}
	return task.ID, nil
}

// StartTask implements queue.Starter: it builds a fresh Task Coordinator
// for taskID and runs it asynchronously, notifying the Queue Manager of
// completion or failure so it can admit the next pending task.
func (r *Root) StartTask(taskID corelib.ID) error {
	r.mu.Lock()
	if _, running := r.coordinators[taskID]; running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	row, err := r.store.FetchTaskByID(taskID)
	if err != nil {
		return err
	}

	taskStore := &taskStoreAdapter{store: r.store}
	segStore := &segStoreAdapter{store: r.store}
	driver := persist.New(persistInterval, func() error {
		cur, err := r.store.FetchTaskByID(taskID)
		if err != nil {
			return err
		}
		return taskStore.SaveTask(&coordinator.TaskRecord{
			ID: cur.ID, SourceURL: cur.SourceURL, DestinationPath: cur.DestinationPath,
			TotalSize: cur.TotalSize, Status: cur.Status, Validators: cur.Validators,
			Credentials: cur.Credentials, MaxConnections: cur.MaxConnections, ErrorMessage: cur.ErrorMessage,
		})
	})

	c := coordinator.New(coordinator.TaskRecord{
		ID:              row.ID,
		SourceURL:       row.SourceURL,
		DestinationPath: row.DestinationPath,
		TotalSize:       row.TotalSize,
		Status:          row.Status,
		Validators:      row.Validators,
		Credentials:     row.Credentials,
		MaxConnections:  row.MaxConnections,
		ErrorMessage:    row.ErrorMessage,
	}, coordinator.Deps{
		Downloader: r.router,
		NewWriter: func(path string) (coordinator.Writer, error) {
			return sparsefile.Open(r.fs, path)
		},
		Limiter:   r.limiter,
		Progress:  &broadcasterAdapter{b: r.broadcast},
		TaskStore: taskStore,
		SegStore:  segStore,
		Notifier:  r.queueMgr,
	}, driver)

	ctx, cancel := context.WithCancelCause(context.Background())
	r.mu.Lock()
	r.coordinators[taskID] = c
	r.cancels[taskID] = cancel
	r.mu.Unlock()

	go driver.Run(ctx)
	go func() {
		defer func() {
			driver.Stop()
			r.mu.Lock()
			delete(r.coordinators, taskID)
			delete(r.cancels, taskID)
			r.mu.Unlock()
		}()
		if err := c.Start(ctx); err != nil {
			r.log.Error("task %s failed: %v", taskID, err)
		}
	}()
	return nil
}

// Pause transitions a running task to paused, cancelling its workers at
// their next suspension point.
func (r *Root) Pause(taskID corelib.ID) error {
	r.mu.Lock()
	c, ok := r.coordinators[taskID]
	cancel := r.cancels[taskID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s is not running", taskID)
	}
	if err := c.Pause(); err != nil {
		return err
	}
	cancel(nil)
	return nil
}

// Resume re-admits a paused task as pending, letting the Queue Manager
// start it again from a fresh connecting phase rather than trying to
// splice back into wherever the old coordinator left off.
func (r *Root) Resume(taskID corelib.ID) error {
	row, err := r.store.FetchTaskByID(taskID)
	if err != nil {
		return err
	}
	row.Status = corelib.StatusPending
	if err := r.store.SaveTask(row); err != nil {
		return err
	}
	r.queueMgr.RequestTick()
	return nil
}

// TaskStatus is a point-in-time view of one task for status/list queries,
// combining the Persistent Store's durable row with the Progress
// Broadcaster's live snapshot.
type TaskStatus struct {
	ID              corelib.ID
	SourceURL       string
	DestinationPath string
	Status          corelib.TaskStatus
	ErrorMessage    string
	TotalBytes      int64
	DownloadedBytes int64
	BytesPerSecond  float64
}

// Status reports the current state of one task.
func (r *Root) Status(taskID corelib.ID) (TaskStatus, error) {
	row, err := r.store.FetchTaskByID(taskID)
	if err != nil {
		return TaskStatus{}, err
	}
	return r.statusFromRow(row), nil
}

// List reports the current state of every task in the given queue, or
// every task across all queues when queueID is empty.
func (r *Root) List(queueID corelib.ID) ([]TaskStatus, error) {
	var rows []*store.Task
	var err error
	if queueID == "" {
		rows, err = r.store.FetchTasksWhere("1 = 1")
	} else {
		rows, err = r.store.FetchTasksWhere("queue_id = ?", string(queueID))
	}
	if err != nil {
		return nil, err
	}
	out := make([]TaskStatus, len(rows))
	for i, row := range rows {
		out[i] = r.statusFromRow(row)
	}
	return out, nil
}

func (r *Root) statusFromRow(row *store.Task) TaskStatus {
	snap, _ := r.broadcast.Snapshot(row.ID)
	total := snap.TotalBytes
	if total == 0 {
		total = row.TotalSize
	}
	return TaskStatus{
		ID:              row.ID,
		SourceURL:       row.SourceURL,
		DestinationPath: row.DestinationPath,
		Status:          row.Status,
		ErrorMessage:    row.ErrorMessage,
		TotalBytes:      total,
		DownloadedBytes: snap.DownloadedBytes,
		BytesPerSecond:  snap.BytesPerSecond,
	}
}

// errCancelledByUser is the cancellation cause Cancel feeds into a running
// task's context, so the coordinator's own failure path records this
// message rather than the generic "context canceled".
var errCancelledByUser = fmt.Errorf("cancelled by user")

// Cancel stops a running task's workers and marks it failed with a
// user-cancellation message.
//
// For a task running in this process, the coordinator's own fail() path
// (driven by the cancellation above) persists the final error_message;
// writing it here too would race that goroutine for the last word on the
// same row. So Cancel only writes the store directly for a task that
// isn't running in this process — paused, pending, or already errored —
// where there is no coordinator goroutine to race.
func (r *Root) Cancel(taskID corelib.ID) error {
	r.mu.Lock()
	cancel, running := r.cancels[taskID]
	r.mu.Unlock()
	if running {
		cancel(errCancelledByUser)
		return nil
	}
	row, err := r.store.FetchTaskByID(taskID)
	if err != nil {
		return err
	}
	row.Status = corelib.StatusError
	row.ErrorMessage = errCancelledByUser.Error()
	if err := r.store.SaveTask(row); err != nil {
		return err
	}
	r.queueMgr.RequestTick()
	return nil
}

// repoAdapter satisfies queue.Repository over *store.Store.
type repoAdapter struct {
	store *store.Store
}

func (a *repoAdapter) ListQueues() ([]queue.QueueView, error) {
	qs, err := a.store.FetchAllQueues()
	if err != nil {
		return nil, err
	}
	out := make([]queue.QueueView, len(qs))
	for i, q := range qs {
		out[i] = queue.QueueView{ID: q.ID, Name: q.Name, IsActive: q.IsActive, MaxConcurrent: q.MaxConcurrent, Mode: q.Mode}
	}
	return out, nil
}

func (a *repoAdapter) ListTasksInQueue(queueID corelib.ID) ([]queue.TaskView, error) {
	tasks, err := a.store.FetchTasksWhere("queue_id = ?", string(queueID))
	if err != nil {
		return nil, err
	}
	out := make([]queue.TaskView, len(tasks))
	for i, t := range tasks {
		out[i] = queue.TaskView{ID: t.ID, QueueID: t.QueueID, Status: t.Status, Priority: t.Priority, CreatedAt: t.CreatedAt}
	}
	return out, nil
}

// starterAdapter satisfies queue.Starter by delegating to Root.StartTask.
type starterAdapter struct {
	root *Root
}

func (a *starterAdapter) StartTask(taskID corelib.ID) error {
	return a.root.StartTask(taskID)
}

// taskStoreAdapter satisfies coordinator.TaskStore over *store.Store.
type taskStoreAdapter struct {
	store *store.Store
}

func (a *taskStoreAdapter) SaveTask(t *coordinator.TaskRecord) error {
	row, err := a.store.FetchTaskByID(t.ID)
	if err != nil {
		row = &store.Task{ID: t.ID, CreatedAt: time.Now()}
	}
	row.SourceURL = t.SourceURL
	row.DestinationPath = t.DestinationPath
	row.TotalSize = t.TotalSize
	row.Status = t.Status
	row.Validators = t.Validators
	row.Credentials = t.Credentials
	row.MaxConnections = t.MaxConnections
	row.ErrorMessage = t.ErrorMessage
	return a.store.SaveTask(row)
}

// segStoreAdapter satisfies coordinator.SegmentStore over *store.Store.
type segStoreAdapter struct {
	store *store.Store
}

func (a *segStoreAdapter) ReplaceSegments(taskID corelib.ID, segments []worker.Snapshot) error {
	return a.store.Transact(func(tx *store.Store) error {
		if err := tx.DeleteSegmentsByTask(taskID); err != nil {
			return err
		}
		for _, s := range segments {
			if err := tx.InsertSegment(&store.Segment{
				ID:            s.ID,
				TaskID:        s.TaskID,
				StartOffset:   s.StartOffset,
				EndOffset:     s.EndOffset,
				CurrentOffset: s.CurrentOffset,
				IsComplete:    s.IsComplete,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *segStoreAdapter) LoadSegments(taskID corelib.ID) ([]worker.Snapshot, error) {
	segs, err := a.store.FetchSegmentsByTask(taskID)
	if err != nil {
		return nil, err
	}
	out := make([]worker.Snapshot, len(segs))
	for i, s := range segs {
		out[i] = worker.Snapshot{
			ID:            s.ID,
			TaskID:        s.TaskID,
			StartOffset:   s.StartOffset,
			EndOffset:     s.EndOffset,
			CurrentOffset: s.CurrentOffset,
			IsComplete:    s.IsComplete,
		}
	}
	return out, nil
}

// broadcasterAdapter satisfies coordinator.Progress over
// *progress.Broadcaster.
type broadcasterAdapter struct {
	b *progress.Broadcaster
}

func (a *broadcasterAdapter) Update(taskID corelib.ID, downloaded, total int64) {
	a.b.Update(taskID, downloaded, total)
}

func (a *broadcasterAdapter) Remove(taskID corelib.ID) {
	a.b.Remove(taskID)
}
