package ratelimit

import (
	"context"
	"time"
)

// Limiter is the sliding-window rate limiting port.
//
// Implementations keep, per key, the ordered timestamps of admitted requests
// inside the trailing window. A check prunes expired timestamps, admits when
// the surviving count is below limit, and records the admitted request so it
// counts toward the next check. Pruning is lazy (on read); no background
// timer is required for correctness.
//
// Concurrent checks against the same key MUST be serialized — one in-flight
// mutation per key — or two callers could both observe used < limit and
// double-admit over the ceiling. Different keys are independent and should
// not contend.
//
// A storage failure returns a non-nil error wrapping ErrStoreUnavailable and
// the zero Result; the caller must reject, never silently allow.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}
