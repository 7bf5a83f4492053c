package worker

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// chunkSize is the read buffer size for each fetch iteration.
const chunkSize = 32 * corelib.KB

// Fetcher is the subset of protocol.Fetcher the worker depends on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, start, end int64, creds corelib.Credentials) (io.ReadCloser, error)
}

// Writer is the subset of sparsefile.Writer the worker depends on.
type Writer interface {
	WriteAt(data []byte, offset int64) (int, error)
}

// Limiter is the subset of ratelimit.Limiter the worker depends on.
type Limiter interface {
	Acquire(ctx context.Context, n int) error
}

// ProgressFunc receives the number of bytes just committed to disk for a
// segment; wired to the Progress Broadcaster by the caller.
type ProgressFunc func(n int64)

// UnboundedDoneFunc is invoked once when an unbounded segment reaches
// natural stream end, reporting the total bytes discovered so the caller
// can record it as the task's total_size.
type UnboundedDoneFunc func(totalBytes int64)

// Config wires a Worker to its collaborators. All fields are required
// except Paused, Progress and OnUnboundedDone.
type Config struct {
	Segment     *Segment
	URL         string
	Credentials corelib.Credentials
	Fetcher     Fetcher
	Writer      Writer
	Limiter     Limiter

	// Paused is polled at the fetch-loop boundary and after every chunk.
	// A nil Paused is treated as never-paused.
	Paused func() bool

	Progress        ProgressFunc
	OnUnboundedDone UnboundedDoneFunc
}

// Worker drives one Segment to completion against the narrow
// Fetcher/Writer/Limiter interfaces above, rather than depending on a
// concrete manager type.
type Worker struct {
	cfg Config
}

// New builds a Worker for the given configuration.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg}
}

// Result is returned by Run: the final cause, if any, and whether the
// worker stopped because of a pause rather than completion or failure.
type Result struct {
	Paused bool
	Err    error
}

// Run fetches, rate-limits, and writes chunks in a loop until the
// segment completes, the worker is paused, or a fatal error occurs.
func (w *Worker) Run(ctx context.Context) Result {
	seg := w.cfg.Segment

	if !seg.Unbounded() && seg.CurrentOffset() > seg.End() {
		seg.markComplete()
		return Result{}
	}

	attempt := 0
	for {
		if w.isPaused() {
			return Result{Paused: true}
		}

		body, err := w.cfg.Fetcher.Fetch(ctx, w.cfg.URL, seg.CurrentOffset(), seg.End(), w.cfg.Credentials)
		if err != nil {
			res, retry := w.handleError(ctx, err, &attempt)
			if retry {
				continue
			}
			return res
		}

		before := seg.CurrentOffset()
		paused, completed, copyErr := w.copyLoop(ctx, body)
		body.Close()

		if paused {
			return Result{Paused: true}
		}
		if completed {
			return Result{}
		}
		if copyErr != nil {
			if seg.CurrentOffset() > before {
				// At least one chunk landed since this fetch opened: the
				// retry budget starts over.
				attempt = 0
			}
			res, retry := w.handleError(ctx, copyErr, &attempt)
			if retry {
				continue
			}
			return res
		}
		// Step 4: fetch terminated naturally without completion on a
		// known-size segment — resume from the advanced offset.
		attempt = 0
	}
}

// copyLoop reads chunks from body, rate-limits, writes, and advances the
// segment offset. Returns (paused, completed, err).
func (w *Worker) copyLoop(ctx context.Context, body io.Reader) (bool, bool, error) {
	seg := w.cfg.Segment
	buf := make([]byte, chunkSize)

	for {
		if w.isPaused() {
			return true, false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, false, err
		}

		toRead := len(buf)
		if !seg.Unbounded() {
			if remaining := seg.RemainingBytes(); remaining >= 0 && remaining < int64(toRead) {
				toRead = int(remaining)
			}
			if toRead == 0 {
				seg.markComplete()
				return false, true, nil
			}
		}

		n, readErr := body.Read(buf[:toRead])
		if n > 0 {
			if err := w.cfg.Limiter.Acquire(ctx, n); err != nil {
				return false, false, err
			}
			if _, err := w.cfg.Writer.WriteAt(buf[:n], seg.CurrentOffset()); err != nil {
				return false, false, err
			}
			seg.advance(int64(n))
			if w.cfg.Progress != nil {
				w.cfg.Progress(int64(n))
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if seg.Unbounded() {
					seg.setEnd(seg.CurrentOffset() - 1)
					seg.markComplete()
					if w.cfg.OnUnboundedDone != nil {
						w.cfg.OnUnboundedDone(seg.CurrentOffset())
					}
					return false, true, nil
				}
				if !seg.IsComplete() && seg.CurrentOffset() > seg.End() {
					seg.markComplete()
					return false, true, nil
				}
				return false, false, nil
			}
			return false, false, readErr
		}

		if !seg.Unbounded() && seg.CurrentOffset() > seg.End() {
			seg.markComplete()
			return false, true, nil
		}
	}
}

// handleError classifies err and either sleeps for the next backoff step
// and signals retry=true, or returns a terminal Result.
func (w *Worker) handleError(ctx context.Context, err error, attempt *int) (Result, bool) {
	switch errs.Classify(err) {
	case errs.CategoryThrottled, errs.CategoryRetryable:
		if *attempt >= maxRetryAttempts {
			return Result{Err: err}, false
		}
		delay := nextBackoff(*attempt)
		*attempt++
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{Err: ctx.Err()}, false
		case <-timer.C:
			return Result{}, true
		}
	default:
		// CategoryFatal: RangeNotSatisfiable, a cancelled context, and any
		// unrecognized error are fatal at the worker level; the
		// Coordinator may re-run the task from the top.
		return Result{Err: err}, false
	}
}

func (w *Worker) isPaused() bool {
	return w.cfg.Paused != nil && w.cfg.Paused()
}
