// Package metrics exposes Prometheus counters for the decision path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the engine increments per prompt.
type Metrics struct {
	Decisions   *prometheus.CounterVec
	Escalations prometheus.Counter
	Risk        *prometheus.CounterVec
	TraceErrors prometheus.Counter
}

// New registers the counters on reg. Pass prometheus.NewRegistry()
// in tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptpilot",
			Name:      "decisions_total",
			Help:      "Decisions made, by executed action type.",
		}, []string{"action"}),
		Escalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "promptpilot",
			Name:      "rate_limit_escalations_total",
			Help:      "Auto-replies escalated to a human by the per-rule cap or a reply guard.",
		}),
		Risk: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptpilot",
			Name:      "decision_risk_total",
			Help:      "Decisions made, by classified risk level.",
		}, []string{"level"}),
		TraceErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "promptpilot",
			Name:      "trace_write_errors_total",
			Help:      "Trace writes that failed and were swallowed.",
		}),
	}
}
