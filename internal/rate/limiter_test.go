package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, Config{Prefix: "es", Limit: limit, Window: time.Minute, OperationTimeout: time.Second}), mr
}

func TestAllowFixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "acct"); err != nil {
			t.Fatalf("hit %d: unexpected error %v", i, err)
		}
	}
	if err := l.Allow(ctx, "acct"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(ctx, "other"); err != nil {
		t.Fatalf("other account must have its own budget: %v", err)
	}

	if ttl := mr.TTL("es:{acct}:logins"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "acct"); err != nil {
		t.Fatalf("expected new window after expiry, got %v", err)
	}
}

func TestAllowConcurrentBudget(t *testing.T) {
	l, _ := newTestLimiter(t, 10)
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(ctx, "acct") == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Fatalf("expected exactly 10 allowed hits, got %d", got)
	}
}

func TestDisabledLimiter(t *testing.T) {
	l, _ := newTestLimiter(t, 0)
	for i := 0; i < 100; i++ {
		if err := l.Allow(context.Background(), "acct"); err != nil {
			t.Fatalf("disabled limiter rejected hit: %v", err)
		}
	}
	var nilLimiter *Limiter
	if err := nilLimiter.Allow(context.Background(), "acct"); err != nil {
		t.Fatalf("nil limiter rejected hit: %v", err)
	}
}

func TestAllowStoreDown(t *testing.T) {
	l, mr := newTestLimiter(t, 3)
	mr.Close()

	if err := l.Allow(context.Background(), "acct"); !coord.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
