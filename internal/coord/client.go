package coord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Options configures NewClient.
type Options struct {
	URL     string
	Breaker BreakerSettings
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewClient parses a redis:// URL, installs the metrics and breaker hooks
// and verifies connectivity.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	ropts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(ropts)
	Instrument(client, opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, Unavailable(err)
	}
	return client, nil
}

// Instrument installs the metrics and breaker hooks on an existing client.
func Instrument(client redis.UniversalClient, opts Options) *BreakerHook {
	breaker := NewBreakerHook(opts.Breaker, opts.Logger, opts.Metrics)
	client.AddHook(NewMetricsHook(opts.Metrics))
	client.AddHook(breaker)
	return breaker
}
