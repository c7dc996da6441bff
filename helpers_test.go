package examcore

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/examcore/catalog"
	"github.com/MrEthical07/examcore/quota"
	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

var testEpoch = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Redis.RetryMaxAttempts = 1
	cfg.Redis.OperationTimeout = time.Second
	cfg.Quota.Timezone = "UTC"
	cfg.Quota.Levels = map[string]quota.Limits{
		"free":    {Daily: 3, Monthly: 10},
		"premium": {Daily: 20, Monthly: 200},
	}
	cfg.Metrics.Enabled = true
	return cfg
}

type mapAccounts map[string]*Account

func (m mapAccounts) GetAccount(_ context.Context, accountID string) (*Account, error) {
	return m[accountID], nil
}

func testAccounts() mapAccounts {
	return mapAccounts{
		"alice": {ID: "alice", Role: "student", MembershipLevel: "free"},
		"bob":   {ID: "bob", Role: "student", MembershipLevel: "premium"},
	}
}

func testCatalog() *catalog.Static {
	return catalog.NewStatic(
		catalog.Question{ID: 1, SubjectID: 1, Type: "single", Difficulty: "easy", CorrectAnswer: "A"},
		catalog.Question{ID: 2, SubjectID: 1, Type: "single", Difficulty: "easy", CorrectAnswer: "B"},
		catalog.Question{ID: 3, SubjectID: 1, Type: "single", Difficulty: "easy", CorrectAnswer: "C"},
		catalog.Question{ID: 4, SubjectID: 1, Type: "single", Difficulty: "hard", CorrectAnswer: "D"},
		catalog.Question{ID: 5, SubjectID: 1, Type: "multi", Difficulty: "hard", CorrectAnswer: "AB"},
		catalog.Question{ID: 6, SubjectID: 2, Type: "single", Difficulty: "easy", CorrectAnswer: "A"},
	)
}

type testEngineOption func(*Builder)

func buildTestEngine(t *testing.T, cfg Config, opts ...testEngineOption) (*Engine, *miniredis.Miniredis, *clockwork.FakeClock) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := clockwork.NewFakeClockAt(testEpoch)

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCatalog(testCatalog()).
		WithAccountProvider(testAccounts()).
		WithClock(clock)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		mr.Close()
	})
	return engine, mr, clock
}
