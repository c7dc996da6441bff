// Command examcore-scheduler runs the quota reset scheduler for a
// deployment and serves its metrics. Run exactly one instance per Redis.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/examcore"
	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/MrEthical07/examcore/internal/logging"
	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/MrEthical07/examcore/quota"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		addr     = flag.String("metrics-addr", ":9090", "listen address for /metrics and /healthz")
		resetNow = flag.Bool("reset-now", false, "run one daily (and, on the 1st, monthly) reset before scheduling")
	)
	flag.Parse()

	cfg, err := examcore.LoadConfigFromEnv()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *addr, *resetNow); err != nil {
		logger.Error("scheduler stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg examcore.Config, logger *slog.Logger, addr string, resetNow bool) error {
	loc, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := coord.NewClient(connectCtx, coord.Options{
		URL: cfg.Redis.URL,
		Breaker: coord.BreakerSettings{
			ConsecutiveFailures: cfg.Redis.BreakerConsecutiveFailures,
			Cooldown:            cfg.Redis.BreakerCooldown,
		},
		Logger:  logger,
		Metrics: m,
	})
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	clock := clockwork.NewRealClock()
	ledger := quota.NewLedger(quota.Options{
		Store: quota.NewRedisStore(client, cfg.Quota.RedisPrefix, cfg.Redis.OperationTimeout, coord.RetryPolicy{
			MaxAttempts:     cfg.Redis.RetryMaxAttempts,
			InitialInterval: cfg.Redis.RetryInitialInterval,
			MaxInterval:     cfg.Redis.RetryMaxInterval,
		}),
		Clock:    clock,
		Location: loc,
		Logger:   logger,
		Metrics:  m,
	})
	scheduler := quota.NewScheduler(ledger, quota.SchedulerOptions{
		Clock:    clock,
		Location: loc,
		Logger:   logger,
	})

	if resetNow {
		scheduler.Tick(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), cfg.Redis.OperationTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("quota scheduler started", "timezone", loc.String())
		err := scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
