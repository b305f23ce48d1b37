package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestRateLimiter_AdmitsUpToLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRateLimiter()

	for i := 0; i < 2; i++ {
		res, err := r.Check(ctx, "key-1", 2, time.Minute)
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("Check() %d not allowed, want allowed", i+1)
		}
		if want := 2 - (i + 1); res.Remaining != want {
			t.Errorf("Remaining = %d, want %d", res.Remaining, want)
		}
	}

	res, err := r.Check(ctx, "key-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if res.Allowed {
		t.Error("third Check() allowed, want denied")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if res.ResetAfter <= 0 || res.ResetAfter > time.Minute {
		t.Errorf("ResetAfter = %v, want within (0, 1m]", res.ResetAfter)
	}
	if res.ResetAt.Before(time.Now()) {
		t.Errorf("ResetAt = %v, want in the future", res.ResetAt)
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRateLimiter()
	window := 100 * time.Millisecond

	for i := 0; i < 2; i++ {
		if res, _ := r.Check(ctx, "key-1", 2, window); !res.Allowed {
			t.Fatalf("Check() %d denied inside fresh window", i+1)
		}
	}
	if res, _ := r.Check(ctx, "key-1", 2, window); res.Allowed {
		t.Fatal("Check() over limit allowed")
	}

	// The first admitted request slides out of the window.
	time.Sleep(window + 50*time.Millisecond)

	res, err := r.Check(ctx, "key-1", 2, window)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !res.Allowed {
		t.Error("Check() denied after window elapsed, want allowed")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRateLimiter()

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

func TestRateLimiter_ContextCancelled(t *testing.T) {
	t.Parallel()

	r := NewRateLimiter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Check(ctx, "key-1", 1, time.Minute); err == nil {
		t.Error("Check() with cancelled context returned nil error")
	}
}

func TestRateLimiter_ConcurrentSameKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRateLimiter()
	const limit = 10
	const attempts = 50

	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Check(ctx, "contested", limit, time.Minute)
			if err != nil {
				t.Errorf("Check() error: %v", err)
				return
			}
			results <- res.Allowed
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for allowed := range results {
		if allowed {
			admitted++
		}
	}
	if admitted != limit {
		t.Errorf("admitted %d of %d concurrent checks, want exactly %d", admitted, attempts, limit)
	}
}

func TestRateLimiter_Size(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRateLimiter()

	if r.Size() != 0 {
		t.Errorf("Size() = %d, want 0", r.Size())
	}
	_, _ = r.Check(ctx, "key-1", 1, time.Minute)
	_, _ = r.Check(ctx, "key-2", 1, time.Minute)
	_, _ = r.Check(ctx, "key-1", 1, time.Minute)
	if r.Size() != 2 {
		t.Errorf("Size() = %d, want 2", r.Size())
	}
}

func TestRateLimiter_CleanupDiscardsIdleKeys(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRateLimiterWithConfig(20*time.Millisecond, 30*time.Millisecond)
	r.StartCleanup(ctx)

	_, _ = r.Check(ctx, "one-shot", 1, time.Minute)
	if r.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", r.Size())
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.Size() != 0 {
		t.Error("idle key not discarded by cleanup")
	}

	r.Stop()
	r.Stop() // safe to repeat
}
