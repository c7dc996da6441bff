package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// BreakerHook fails store commands fast while Redis is unhealthy. There is
// no cached fallback: every caller treats an open breaker as ErrUnavailable
// and fails closed.
type BreakerHook struct {
	cb *gobreaker.CircuitBreaker
}

var _ redis.Hook = (*BreakerHook)(nil)

// BreakerSettings tunes the breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	Cooldown            time.Duration
	HalfOpenRequests    uint32
}

func NewBreakerHook(s BreakerSettings, logger *slog.Logger, m *metrics.Metrics) *BreakerHook {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 10 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BreakerHook{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "coordination-store",
			MaxRequests: s.HalfOpenRequests,
			Timeout:     s.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					"component", name,
					"from", from.String(),
					"to", to.String(),
				)
				m.Breaker(stateToFloat(to))
			},
		}),
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State exposes the breaker state for health checks and tests.
func (h *BreakerHook) State() gobreaker.State {
	return h.cb.State()
}

func (h *BreakerHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *BreakerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		var cmdErr error
		_, err := h.cb.Execute(func() (interface{}, error) {
			cmdErr = next(ctx, cmd)
			if isFault(cmdErr) {
				return nil, cmdErr
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("redis circuit breaker open: %w", err)
		}
		return cmdErr
	}
}

func (h *BreakerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		var cmdErr error
		_, err := h.cb.Execute(func() (interface{}, error) {
			cmdErr = next(ctx, cmds)
			if isFault(cmdErr) {
				return nil, cmdErr
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("redis circuit breaker open: %w", err)
		}
		return cmdErr
	}
}

// isFault separates infrastructure failures from protocol replies: a
// missing key or a script-level error reply does not count against Redis
// health.
func isFault(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	var redisErr redis.Error
	return !errors.As(err, &redisErr)
}

// MetricsHook records per-command counts and latency.
type MetricsHook struct {
	m *metrics.Metrics
}

var _ redis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(m *metrics.Metrics) *MetricsHook {
	return &MetricsHook{m: m}
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		h.m.StoreOp("dial", status(err), time.Since(start).Seconds())
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.m.StoreOp(cmd.Name(), status(err), time.Since(start).Seconds())
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.m.StoreOp("pipeline", status(err), time.Since(start).Seconds())
		return err
	}
}

func status(err error) string {
	if err != nil && !errors.Is(err, redis.Nil) {
		return "error"
	}
	return "success"
}
