package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	ToolCallsTotal  *prometheus.CounterVec
	ModelTurnsTotal *prometheus.CounterVec
	PassDuration    prometheus.Histogram
	ActiveRuns      prometheus.Gauge
	LockContention  prometheus.Counter
}

// NewMetrics registers the runtime collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_events_total",
			Help: "Run events produced, by type",
		}, []string{"type"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_tool_calls_total",
			Help: "Tool calls resolved, by tool and outcome",
		}, []string{"tool", "outcome"}),
		ModelTurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_model_turns_total",
			Help: "Model turns, by outcome",
		}, []string{"outcome"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentrun_pass_duration_seconds",
			Help:    "Duration of one execution pass",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentrun_active_runs",
			Help: "Runs currently held by this process",
		}),
		LockContention: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentrun_lock_contention_total",
			Help: "Triggers that found the run already locked",
		}),
	}
}

func (m *Metrics) event(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) toolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) modelTurn(outcome string) {
	if m == nil {
		return
	}
	m.ModelTurnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) pass(d time.Duration) {
	if m == nil {
		return
	}
	m.PassDuration.Observe(d.Seconds())
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

func (m *Metrics) runFinished() {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
}

func (m *Metrics) contended() {
	if m == nil {
		return
	}
	m.LockContention.Inc()
}
