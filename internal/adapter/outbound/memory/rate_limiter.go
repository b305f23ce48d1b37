// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/conduit-mcp/conduit/internal/domain/ratelimit"
)

// shardCount is the number of key shards. Power of two so the xxhash digest
// can be masked instead of divided.
const shardCount = 32

// RateLimiter implements ratelimit.Limiter with per-key sliding windows held
// in memory. Thread-safe. Each key owns its own mutex, so checks against one
// tenant never serialize another; the shard locks only guard map access.
// Includes background cleanup to prevent unbounded growth from one-shot keys.
type RateLimiter struct {
	shards [shardCount]shard

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxIdle         time.Duration
}

type shard struct {
	mu   sync.Mutex
	keys map[string]*window
}

// window is the unit of storage isolated per key. Its mutex enforces the
// single-in-flight-mutation invariant for that key.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
}

// NewRateLimiter creates an in-memory limiter with default cleanup settings:
// sweep every 5 minutes, discard keys idle for an hour. Discarding idle state
// is safe — the window is a point-in-time cache, not a ledger.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithConfig(5*time.Minute, 1*time.Hour)
}

// NewRateLimiterWithConfig creates an in-memory limiter with custom cleanup
// settings.
func NewRateLimiterWithConfig(cleanupInterval, maxIdle time.Duration) *RateLimiter {
	r := &RateLimiter{
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
	}
	for i := range r.shards {
		r.shards[i].keys = make(map[string]*window)
	}
	return r
}

// Check runs one sliding-window check-and-admit for the key.
func (r *RateLimiter) Check(ctx context.Context, key string, limit int, windowLen time.Duration) (ratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Result{}, err
	}

	sh := &r.shards[xxhash.Sum64String(key)&(shardCount-1)]
	sh.mu.Lock()
	w, ok := sh.keys[key]
	if !ok {
		w = &window{}
		sh.keys[key] = w
	}
	sh.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.lastSeen = now
	windowStart := now.Add(-windowLen)

	// Lazy prune: drop every timestamp at or before the window start.
	// Work per check is bounded by the requests inside one window for
	// this key.
	keep := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(windowStart) {
			keep = append(keep, ts)
		}
	}
	w.stamps = keep

	used := len(w.stamps)
	allowed := used < limit
	if allowed {
		w.stamps = append(w.stamps, now)
	}

	remaining := limit - used
	if allowed {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(windowLen)
	if len(w.stamps) > 0 {
		resetAt = w.stamps[0].Add(windowLen)
	}
	resetAfter := resetAt.Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	return ratelimit.Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		ResetAt:    resetAt,
	}, nil
}

// StartCleanup starts the background cleanup goroutine. It periodically
// discards keys that have been idle longer than maxIdle. Stops when ctx is
// cancelled or Stop() is called.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup discards idle keys. Lock order matches Check (shard, then window),
// and Check never holds a window lock while waiting on a shard lock.
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-r.maxIdle)
	cleaned := 0

	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for key, w := range sh.keys {
			w.mu.Lock()
			idle := w.lastSeen.Before(cutoff)
			w.mu.Unlock()
			if idle {
				delete(sh.keys, key)
				cleaned++
			}
		}
		sh.mu.Unlock()
	}

	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed", "cleaned_keys", cleaned)
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (r *RateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the number of tracked keys. Useful for monitoring memory use.
func (r *RateLimiter) Size() int {
	total := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		total += len(sh.keys)
		sh.mu.Unlock()
	}
	return total
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*RateLimiter)(nil)
