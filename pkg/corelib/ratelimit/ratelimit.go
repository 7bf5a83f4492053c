// Package ratelimit implements the process-global token-bucket rate
// limiter: a single shared instance throttling aggregate byte transfer
// across every segment worker.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimited is used as the token-bucket rate when limiting is disabled;
// rate.Inf never blocks a Wait/Allow call.
const unlimited = rate.Inf

// Limiter is a global token bucket. NewLimiter returns one that starts
// unlimited, matching "0 disables limiting". A zero Limiter has no bucket
// until Configure is called, so Acquire and TryAcquire must not be called
// on it before then.
//
// Refill is by wall-clock delta with a 2x-rate burst capacity, delegated
// to golang.org/x/time/rate rather than hand-rolled, since that package
// already implements exactly this algorithm correctly.
type Limiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	bps     int64
}

// NewLimiter creates a Limiter with no throughput cap.
func NewLimiter() *Limiter {
	return &Limiter{limiter: rate.NewLimiter(unlimited, 0)}
}

// Configure sets the throughput cap in bytes per second. Capacity (burst)
// is always 2x the configured rate, per spec. bytesPerSecond of 0 disables
// limiting entirely.
func (l *Limiter) Configure(bytesPerSecond int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bps = bytesPerSecond
	if bytesPerSecond <= 0 {
		l.limiter = rate.NewLimiter(unlimited, 0)
		return
	}
	burst := bytesPerSecond * 2
	if burst > int64(^uint(0)>>1) {
		burst = int64(^uint(0) >> 1)
	}
	l.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst))
}

// BytesPerSecond returns the currently configured rate, or 0 if disabled.
func (l *Limiter) BytesPerSecond() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bps
}

// Acquire suspends the caller until n tokens (bytes) are available,
// refilling continuously at the configured rate. Returns immediately when
// disabled. Only returns an error if ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	l.mu.RLock()
	limiter := l.limiter
	l.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	// WaitN requires n <= burst; for huge chunks, acquire in the limiter's
	// own burst-sized slices so large reads never deadlock against a small
	// configured rate.
	burst := limiter.Burst()
	if burst <= 0 {
		return nil
	}
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// TryAcquire is the nonblocking variant of Acquire: it reports whether n
// tokens were available right now, consuming them if so.
func (l *Limiter) TryAcquire(n int) bool {
	l.mu.RLock()
	limiter := l.limiter
	l.mu.RUnlock()
	if n <= 0 {
		return true
	}
	return limiter.AllowN(time.Now(), n)
}
