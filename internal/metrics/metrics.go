// Package metrics exposes the Prometheus instruments of the decision engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kestrel"

// Decision kinds.
const (
	KindFraudCheck = "fraud_check"
	KindBehavior   = "behavior_analysis"
	KindLoanQuote  = "loan_quote"
	KindCollection = "collection_plan"
	KindOutcome    = "contact_outcome"
)

// Decision outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeAlert   = "alert"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Side-effect components that can fail without failing a decision.
const (
	ComponentRepository = "repository"
	ComponentBus        = "bus"
	ComponentSessions   = "session_store"
	ComponentVelocity   = "velocity"
)

// Metrics holds the instruments on a private registry, so several
// instances can coexist in one process. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	decisions          *prometheus.CounterVec
	decisionLatency    *prometheus.HistogramVec
	fraudRiskLevels    *prometheus.CounterVec
	fraudScores        prometheus.Histogram
	anomalies          *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers every instrument, plus the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decision",
				Name:      "total",
				Help:      "Decisions made, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		decisionLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "decision",
				Name:      "duration_seconds",
				Help:      "Time taken to make a decision, including side-effects",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"kind"},
		),
		fraudRiskLevels: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fraud",
				Name:      "assessments_total",
				Help:      "Fraud assessments by risk level",
			},
			[]string{"risk_level", "fraudulent"},
		),
		fraudScores: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fraud",
				Name:      "risk_score",
				Help:      "Distribution of fraud risk scores",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "behavior",
				Name:      "patterns_total",
				Help:      "Behavioral anomaly patterns detected",
			},
			[]string{"pattern"},
		),
		sideEffectFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "decision",
				Name:      "side_effect_failures_total",
				Help:      "Persistence and publish failures that did not fail the decision",
			},
			[]string{"component"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDecision counts a decision and records its latency.
func (m *Metrics) ObserveDecision(kind, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind, outcome).Inc()
	m.decisionLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveFraud records a fraud assessment.
func (m *Metrics) ObserveFraud(a *domain.FraudAssessment) {
	if m == nil || a == nil {
		return
	}
	m.fraudRiskLevels.WithLabelValues(string(a.RiskLevel), strconv.FormatBool(a.IsFraudulent)).Inc()
	m.fraudScores.Observe(float64(a.RiskScore))
}

// ObserveAnomaly counts each detected pattern.
func (m *Metrics) ObserveAnomaly(a *domain.AnomalyAssessment) {
	if m == nil || a == nil {
		return
	}
	for _, p := range a.Patterns {
		m.anomalies.WithLabelValues(p).Inc()
	}
}

// SideEffectFailed counts a failed persistence, publish or session write.
func (m *Metrics) SideEffectFailed(component string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(component).Inc()
}

// ObserveHTTP records one served request. route is the chi route pattern.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// WatchBusDrops exposes a bus drop counter, such as ChannelBus.Dropped.
func (m *Metrics) WatchBusDrops(dropped func() uint64) {
	if m == nil || dropped == nil {
		return
	}
	promauto.With(m.registry).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a subscriber buffer was full",
		},
		func() float64 { return float64(dropped()) },
	)
}
