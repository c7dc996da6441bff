package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "examcore"

// Metrics groups every collector the module exports.
type Metrics struct {
	Logins          *prometheus.CounterVec
	Supersessions   prometheus.Counter
	Validations     *prometheus.CounterVec
	QuotaConsume    *prometheus.CounterVec
	QuotaResets     *prometheus.CounterVec
	CursorDelivered *prometheus.CounterVec
	ExamAssemblies  *prometheus.CounterVec
	StoreOps        *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
	AuditDrops      *prometheus.CounterVec
	BreakerState    prometheus.Gauge

	own *prometheus.Registry
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

var (
	loginsOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}
	supersessionsOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "supersessions_total",
		Help:      "Logins that replaced an existing session.",
	}
	validationsOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "validations_total",
		Help:      "Token validations by result.",
	}
	consumeOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "quota",
		Name:      "consume_total",
		Help:      "Quota consume calls by result.",
	}
	resetsOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "quota",
		Name:      "resets_total",
		Help:      "Quota window resets by window and result.",
	}
	deliveredOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cursor",
		Name:      "next_total",
		Help:      "Cursor advances by outcome.",
	}
	assembliesOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exam",
		Name:      "assemblies_total",
		Help:      "Exam blueprint assemblies by outcome.",
	}
	storeOpsOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Coordination store commands by name and status.",
	}
	auditDroppedOpts = prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "dropped_total",
		Help:      "Audit events that never reached the sink, by event type and reason.",
	}
	breakerOpts = prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "circuit_breaker_state",
		Help:      "0=closed, 1=half-open, 2=open.",
	}
)

// Family describes one counter or gauge family reported by Snapshot.
type Family struct {
	Name  string
	Help  string
	Gauge bool
}

// Families lists every family Snapshot can report, in a stable order.
func Families() []Family {
	out := make([]Family, 0, 10)
	for _, o := range []prometheus.CounterOpts{
		loginsOpts, supersessionsOpts, validationsOpts, consumeOpts, resetsOpts,
		deliveredOpts, assembliesOpts, storeOpsOpts, auditDroppedOpts,
	} {
		out = append(out, Family{Name: prometheus.BuildFQName(o.Namespace, o.Subsystem, o.Name), Help: o.Help})
	}
	return append(out, Family{
		Name:  prometheus.BuildFQName(breakerOpts.Namespace, breakerOpts.Subsystem, breakerOpts.Name),
		Help:  breakerOpts.Help,
		Gauge: true,
	})
}

// New builds the collectors and registers them on reg. reg may be nil, in
// which case the collectors are created but never exported.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins:          prometheus.NewCounterVec(loginsOpts, []string{"result"}),
		Supersessions:   prometheus.NewCounter(supersessionsOpts),
		Validations:     prometheus.NewCounterVec(validationsOpts, []string{"result"}),
		QuotaConsume:    prometheus.NewCounterVec(consumeOpts, []string{"result"}),
		QuotaResets:     prometheus.NewCounterVec(resetsOpts, []string{"window", "result"}),
		CursorDelivered: prometheus.NewCounterVec(deliveredOpts, []string{"outcome"}),
		ExamAssemblies:  prometheus.NewCounterVec(assembliesOpts, []string{"outcome"}),
		StoreOps:        prometheus.NewCounterVec(storeOpsOpts, []string{"operation", "status"}),
		StoreOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Coordination store command latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		AuditDrops:   prometheus.NewCounterVec(auditDroppedOpts, []string{"event_type", "reason"}),
		BreakerState: prometheus.NewGauge(breakerOpts),
		own:          prometheus.NewRegistry(),
	}

	m.own.MustRegister(
		m.Logins,
		m.Supersessions,
		m.Validations,
		m.QuotaConsume,
		m.QuotaResets,
		m.CursorDelivered,
		m.ExamAssemblies,
		m.StoreOps,
		m.AuditDrops,
		m.BreakerState,
	)
	if reg != nil {
		reg.MustRegister(
			m.Logins,
			m.Supersessions,
			m.Validations,
			m.QuotaConsume,
			m.QuotaResets,
			m.CursorDelivered,
			m.ExamAssemblies,
			m.StoreOps,
			m.StoreOpDuration,
			m.AuditDrops,
			m.BreakerState,
		)
	}
	return m
}

// Sample is one labelled series value.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Snapshot copies the current value of every counter and gauge series.
// Histograms are left to the Prometheus handler.
func (m *Metrics) Snapshot() ([]Sample, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.own.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			s := Sample{Name: mf.GetName()}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Value = metric.GetGauge().GetValue()
			default:
				continue
			}
			if pairs := metric.GetLabel(); len(pairs) > 0 {
				s.Labels = make(map[string]string, len(pairs))
				for _, lp := range pairs {
					s.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) Superseded() {
	if m == nil {
		return
	}
	m.Supersessions.Inc()
}

func (m *Metrics) Validation(result string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(result).Inc()
}

func (m *Metrics) Consume(result string) {
	if m == nil {
		return
	}
	m.QuotaConsume.WithLabelValues(result).Inc()
}

func (m *Metrics) Reset(window, result string) {
	if m == nil {
		return
	}
	m.QuotaResets.WithLabelValues(window, result).Inc()
}

func (m *Metrics) Delivered(outcome string) {
	if m == nil {
		return
	}
	m.CursorDelivered.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Assembly(outcome string) {
	if m == nil {
		return
	}
	m.ExamAssemblies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StoreOp(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(operation, status).Inc()
	m.StoreOpDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) AuditDropped(eventType, reason string) {
	if m == nil {
		return
	}
	m.AuditDrops.WithLabelValues(eventType, reason).Inc()
}

func (m *Metrics) Breaker(state float64) {
	if m == nil {
		return
	}
	m.BreakerState.Set(state)
}
