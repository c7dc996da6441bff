// Command examcore-loadtest drives concurrent logins, quota charges and
// practice deliveries through one Engine and checks the coordination
// invariants afterwards.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/examcore"
	"github.com/MrEthical07/examcore/catalog"
	"github.com/MrEthical07/examcore/cursor"
	"github.com/MrEthical07/examcore/internal/logging"
	"github.com/MrEthical07/examcore/quota"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type phaseResult struct {
	stats      phaseStats
	violations []string
}

func (r *phaseResult) violate(format string, args ...any) {
	r.violations = append(r.violations, fmt.Sprintf(format, args...))
}

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		daily       = flag.Int64("daily-limit", 25, "daily quota per account")
		questions   = flag.Int("questions", 100, "catalog size for the delivery phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *daily <= 0 || *questions <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, ops, daily-limit and questions must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client, *daily, *questions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ids := make([]string, *accounts)
	for i := range ids {
		ids[i] = fmt.Sprintf("load-%d", i)
	}

	results := map[string]*phaseResult{
		"login":    runLoginPhase(ctx, engine, ids, *ops, *concurrency),
		"consume":  runConsumePhase(ctx, engine, ids, *ops, *concurrency, *daily),
		"delivery": runDeliveryPhase(ctx, engine, ids, *ops, *concurrency, *questions),
	}

	fmt.Println("---- results ----")
	failed := false
	for _, name := range []string{"login", "consume", "delivery"} {
		res := results[name]
		printStats(name, res.stats)
		for _, v := range res.violations {
			failed = true
			fmt.Printf("  VIOLATION: %s\n", v)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func buildEngine(client redis.UniversalClient, daily int64, questions int) (*examcore.Engine, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	cfg := examcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = key
	cfg.Quota.Timezone = "UTC"
	cfg.Session.LoginLimit = 0
	cfg.Quota.Levels = map[string]quota.Limits{
		"load": {Daily: daily, Monthly: daily * 30},
	}

	qs := make([]catalog.Question, questions)
	for i := range qs {
		qs[i] = catalog.Question{ID: int64(i + 1), SubjectID: 1, Type: "single", Difficulty: "easy"}
	}

	return examcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCatalog(catalog.NewStatic(qs...)).
		WithAccountProvider(examcore.AccountProviderFunc(func(_ context.Context, id string) (*examcore.Account, error) {
			return &examcore.Account{ID: id, Role: "student", MembershipLevel: "load"}, nil
		})).
		WithLogger(logging.New("warn", "text")).
		Build()
}

// runPhase spreads ops over concurrency workers; op receives the global
// operation index.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg       sync.WaitGroup
		next     int64
		failures int64
		rec      = newRecorder(ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				if err := op(i); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				rec.add(time.Since(t0))
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), rec.latencies, failures)
}

func runLoginPhase(ctx context.Context, engine *examcore.Engine, ids []string, ops, concurrency int) *phaseResult {
	var mu sync.Mutex
	tokens := make(map[string][]string, len(ids))

	res := &phaseResult{}
	res.stats = runPhase(ops, concurrency, func(i int) error {
		acct := ids[i%len(ids)]
		out, err := engine.Login(ctx, acct, "student")
		if err != nil {
			return err
		}
		mu.Lock()
		tokens[acct] = append(tokens[acct], out.Token)
		mu.Unlock()
		return nil
	})

	for acct, list := range tokens {
		valid := 0
		for _, tok := range list {
			if _, err := engine.Validate(ctx, tok, acct); err == nil {
				valid++
			}
		}
		if valid != 1 {
			res.violate("account %s has %d valid tokens", acct, valid)
		}
	}
	return res
}

func runConsumePhase(ctx context.Context, engine *examcore.Engine, ids []string, ops, concurrency int, daily int64) *phaseResult {
	res := &phaseResult{}
	for _, acct := range ids {
		if _, err := engine.InitializeQuota(ctx, acct); err != nil {
			res.violate("initialize %s: %v", acct, err)
			return res
		}
	}

	granted := make([]atomic.Int64, len(ids))
	res.stats = runPhase(ops, concurrency, func(i int) error {
		idx := i % len(ids)
		_, err := engine.Consume(ctx, ids[idx], 1)
		if err == nil {
			granted[idx].Add(1)
			return nil
		}
		if errors.Is(err, quota.ErrQuotaExceeded) {
			return nil
		}
		return err
	})

	attempts := make([]int64, len(ids))
	for i := 0; i < ops; i++ {
		attempts[i%len(ids)]++
	}
	for idx, acct := range ids {
		want := min(attempts[idx], daily)
		if got := granted[idx].Load(); got != want {
			res.violate("account %s granted %d charges, want %d", acct, got, want)
		}
		usage, err := engine.Usage(ctx, acct)
		if err != nil {
			res.violate("usage %s: %v", acct, err)
			continue
		}
		if usage.UsedDaily > usage.DailyLimit || usage.UsedMonthly > usage.MonthlyLimit {
			res.violate("account %s over limit: %+v", acct, usage)
		}
	}
	return res
}

func runDeliveryPhase(ctx context.Context, engine *examcore.Engine, ids []string, ops, concurrency, questions int) *phaseResult {
	res := &phaseResult{}
	keys := make([]examcore.PracticeKey, len(ids))
	for i, acct := range ids {
		keys[i] = examcore.PracticeKey{AccountID: acct, Filter: catalog.Filter{SubjectID: 1}, Mode: cursor.ModeRandom}
		if _, err := engine.StartPractice(ctx, keys[i], nil); err != nil {
			res.violate("start %s: %v", acct, err)
			return res
		}
	}

	seen := make([]sync.Map, len(ids))
	var duplicates atomic.Int64
	res.stats = runPhase(ops, concurrency, func(i int) error {
		idx := i % len(ids)
		d, err := engine.NextQuestion(ctx, keys[idx])
		if err != nil {
			return err
		}
		if d.Exhausted {
			return nil
		}
		if _, dup := seen[idx].LoadOrStore(d.QuestionID, struct{}{}); dup {
			duplicates.Add(1)
		}
		return nil
	})

	if n := duplicates.Load(); n > 0 {
		res.violate("%d duplicate deliveries", n)
	}
	for idx, acct := range ids {
		count := 0
		seen[idx].Range(func(any, any) bool { count++; return true })
		if count > questions {
			res.violate("account %s received %d distinct ids from %d questions", acct, count, questions)
		}
	}
	return res
}
