package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercator-hq/pricegate/pkg/evaluator"
	"mercator-hq/pricegate/pkg/pricing"
	"mercator-hq/pricegate/pkg/risk"
)

// Metrics contains the engine's Prometheus collectors.
type Metrics struct {
	// Outcomes
	decisions   *prometheus.CounterVec
	transitions *prometheus.CounterVec

	// Policy
	gateFailures *prometheus.CounterVec
	riskTriggers *prometheus.CounterVec

	// Side effects
	sinkFailures *prometheus.CounterVec

	pendingApprovals prometheus.Gauge
	halted           prometheus.Gauge

	evaluationDuration prometheus.Histogram
}

// NewMetrics registers the engine collectors with reg. A nil reg gets a
// private registry, which keeps tests from colliding on the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricegate_decisions_total",
				Help: "Total number of evaluated recommendations by resulting status",
			},
			[]string{"status"},
		),

		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricegate_decision_transitions_total",
				Help: "Total number of decision status transitions",
			},
			[]string{"from", "to"},
		),

		gateFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricegate_rule_gate_failures_total",
				Help: "Total number of per-rule gate failures by gate",
			},
			[]string{"gate"},
		),

		riskTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricegate_risk_triggers_total",
				Help: "Total number of risk control triggers",
			},
			[]string{"control", "action"},
		),

		sinkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricegate_sink_failures_total",
				Help: "Total number of failed side-effect deliveries by sink",
			},
			[]string{"sink"},
		),

		pendingApprovals: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricegate_pending_approvals",
				Help: "Number of decisions currently awaiting manual review",
			},
		),

		halted: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricegate_engine_halted",
				Help: "1 while the engine refuses new recommendations",
			},
		),

		evaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricegate_evaluation_duration_seconds",
				Help:    "Time spent evaluating a recommendation, side effects included",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
	}
}

// Transitioned implements decision.Observer.
func (m *Metrics) Transitioned(from, to pricing.Status) {
	if from != "" {
		m.transitions.WithLabelValues(string(from), string(to)).Inc()
	}
	if to == pricing.StatusManualReview && from != pricing.StatusManualReview {
		m.pendingApprovals.Inc()
	}
	if from == pricing.StatusManualReview && to != pricing.StatusManualReview {
		m.pendingApprovals.Dec()
	}
}

// SinkFailed implements decision.Observer.
func (m *Metrics) SinkFailed(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// SetPendingApprovals seeds the gauge, e.g. after loading a durable store.
func (m *Metrics) SetPendingApprovals(n int) {
	m.pendingApprovals.Set(float64(n))
}

func (m *Metrics) recordDecision(status pricing.Status, started time.Time) {
	m.decisions.WithLabelValues(string(status)).Inc()
	m.evaluationDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) recordGateFailures(result *evaluator.Result) {
	for _, f := range result.Failures() {
		m.gateFailures.WithLabelValues(string(f.Gate)).Inc()
	}
}

func (m *Metrics) recordRisk(a risk.Assessment) {
	for _, t := range a.Triggers {
		m.riskTriggers.WithLabelValues(string(t.Control), string(t.Action)).Inc()
	}
}

func (m *Metrics) setHalted(halted bool) {
	if halted {
		m.halted.Set(1)
	} else {
		m.halted.Set(0)
	}
}
