package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/conduit-mcp/conduit/internal/domain/ratelimit"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client), mr
}

func TestRateLimiter_AdmitsUpToLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		res, err := r.Check(ctx, "ratelimit:id:abc", 3, time.Minute)
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("Check() %d denied, want allowed", i+1)
		}
		if want := 3 - (i + 1); res.Remaining != want {
			t.Errorf("Remaining = %d, want %d", res.Remaining, want)
		}
	}

	res, err := r.Check(ctx, "ratelimit:id:abc", 3, time.Minute)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if res.Allowed {
		t.Error("Check() over limit allowed, want denied")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if res.ResetAfter <= 0 {
		t.Errorf("ResetAfter = %v, want positive retry hint", res.ResetAfter)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _ := newTestLimiter(t)

	if res, _ := r.Check(ctx, "key-a", 1, time.Minute); !res.Allowed {
		t.Fatal("key-a first Check() denied")
	}
	if res, _ := r.Check(ctx, "key-a", 1, time.Minute); res.Allowed {
		t.Fatal("key-a second Check() allowed, want denied")
	}
	if res, _ := r.Check(ctx, "key-b", 1, time.Minute); !res.Allowed {
		t.Error("key-b denied by key-a's exhaustion")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _ := newTestLimiter(t)
	window := 100 * time.Millisecond

	if res, _ := r.Check(ctx, "key-1", 1, window); !res.Allowed {
		t.Fatal("first Check() denied")
	}
	if res, _ := r.Check(ctx, "key-1", 1, window); res.Allowed {
		t.Fatal("second Check() allowed inside the window")
	}

	// Pruning is score-based against wall-clock milliseconds, so real
	// sleep (not miniredis FastForward) moves the window.
	time.Sleep(window + 50*time.Millisecond)

	res, err := r.Check(ctx, "key-1", 1, window)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !res.Allowed {
		t.Error("Check() denied after window elapsed, want allowed")
	}
}

func TestRateLimiter_FailsClosedOnStoreError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, mr := newTestLimiter(t)

	mr.Close()

	res, err := r.Check(ctx, "key-1", 10, time.Minute)
	if err == nil {
		t.Fatal("Check() against closed store returned nil error")
	}
	if !errors.Is(err, ratelimit.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
	if res.Allowed {
		t.Error("Allowed = true on store failure, must fail closed")
	}
}
