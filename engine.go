package examcore

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/examcore/cursor"
	"github.com/MrEthical07/examcore/exam"
	internalaudit "github.com/MrEthical07/examcore/internal/audit"
	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/MrEthical07/examcore/internal/flows"
	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/MrEthical07/examcore/internal/rate"
	"github.com/MrEthical07/examcore/jwt"
	"github.com/MrEthical07/examcore/quota"
	"github.com/MrEthical07/examcore/session"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Engine is the facade over the session registry, quota ledger, delivery
// cursor and exam assembler. The four components share only the Redis
// client and never call one another.
//
// Engine instances are intended to be configured during initialization and then treated as immutable.
type Engine struct {
	config Config
	redis  redis.UniversalClient
	clock  clockwork.Clock
	logger *slog.Logger

	jwtManager   *jwt.Manager
	sessionStore *session.Store
	loginLimiter *rate.Limiter
	flowService  flows.Service

	accounts  AccountProvider
	location  *time.Location
	ledger    *quota.Ledger
	generator *quota.GatedGenerator

	cursor *cursor.Cursor
	exams  *exam.Assembler

	audit    *internalaudit.Dispatcher
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	breaker  *coord.BreakerHook
}

// Close drains the audit dispatcher. The Redis client is owned by the caller
// and stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped counts events discarded because the audit buffer was full, the
// caller was cancelled, or the dispatcher was closed.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsHandler serves the engine's private Prometheus registry. It returns
// nil when metrics are disabled or registered on a caller-supplied registerer.
func (e *Engine) MetricsHandler() http.Handler {
	if e == nil || e.registry == nil {
		return nil
	}
	return metrics.Handler(e.registry)
}

// MetricSample is one labelled counter or gauge value.
type MetricSample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// MetricFamily names a series family that MetricsSnapshot may report.
type MetricFamily struct {
	Name  string
	Help  string
	Gauge bool
}

// MetricFamilies lists the families MetricsSnapshot reports, in a stable
// order. Exporters use it to declare instruments up front.
func MetricFamilies() []MetricFamily {
	defs := metrics.Families()
	out := make([]MetricFamily, len(defs))
	for i, d := range defs {
		out[i] = MetricFamily{Name: d.Name, Help: d.Help, Gauge: d.Gauge}
	}
	return out
}

// MetricsSnapshot copies the engine's counters and gauges. It is empty when
// metrics are disabled. Latency histograms are only exposed through
// MetricsHandler or the caller's registerer.
func (e *Engine) MetricsSnapshot() ([]MetricSample, error) {
	if e == nil {
		return nil, nil
	}
	samples, err := e.metrics.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]MetricSample, len(samples))
	for i, s := range samples {
		out[i] = MetricSample{Name: s.Name, Labels: s.Labels, Value: s.Value}
	}
	return out, nil
}

// Health reports store reachability and the circuit breaker state.
type Health struct {
	StoreLatency time.Duration
	BreakerState string
	Err          error
}

// Health pings the coordination store.
func (e *Engine) Health(ctx context.Context) Health {
	if e == nil || e.sessionStore == nil {
		return Health{Err: ErrEngineNotReady}
	}
	h := Health{BreakerState: gobreaker.StateClosed.String()}
	if e.breaker != nil {
		h.BreakerState = e.breaker.State().String()
	}
	h.StoreLatency, h.Err = e.sessionStore.Ping(ctx)
	return h
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}
