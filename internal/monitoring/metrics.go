// Package monitoring exposes Prometheus metrics for the decision core and
// the per-view event counters used for dashboard badges.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ocx/econcore/internal/core"
	"github.com/ocx/econcore/internal/events"
)

// Metrics holds all Prometheus metrics for the decision core. It satisfies
// the observer interfaces of the bus, pipeline, composer and sink.
type Metrics struct {
	// Decision metrics
	Decisions       *prometheus.CounterVec
	DecisionLatency *prometheus.HistogramVec

	// Bus metrics
	EventsPublished  *prometheus.CounterVec
	SubscriberFaults *prometheus.CounterVec

	// Planning metrics
	PlansComposed *prometheus.CounterVec

	// Feed metrics
	Notifications *prometheus.CounterVec
	ActiveToasts  prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econ_decisions_total",
				Help: "Enforcement decisions by domain and outcome",
			},
			[]string{"domain", "decision"},
		),

		DecisionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "econ_decision_latency_seconds",
				Help:    "Wall-clock time to resolve and evaluate a policy",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"domain"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econ_events_published_total",
				Help: "Governance events delivered by the bus",
			},
			[]string{"kind"},
		),

		SubscriberFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econ_subscriber_faults_total",
				Help: "Subscriber handlers that errored or panicked",
			},
			[]string{"kind", "subscriber"},
		),

		PlansComposed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econ_plans_composed_total",
				Help: "Agent plans composed or revised",
			},
			[]string{"mode"}, // mode: composed, revised
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econ_notifications_total",
				Help: "Notifications added to the feed by level",
			},
			[]string{"level"},
		),

		ActiveToasts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "econ_active_toasts",
				Help: "Toasts currently visible",
			},
		),
	}
}

func (m *Metrics) ObserveDecision(domain core.Domain, decision core.EnforcementDecision, latency time.Duration) {
	m.Decisions.WithLabelValues(string(domain), string(decision)).Inc()
	m.DecisionLatency.WithLabelValues(string(domain)).Observe(latency.Seconds())
}

func (m *Metrics) EventPublished(kind events.Kind) {
	m.EventsPublished.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) SubscriberFault(kind events.Kind, subscriber string) {
	m.SubscriberFaults.WithLabelValues(string(kind), subscriber).Inc()
}

func (m *Metrics) PlanComposed(revised bool) {
	mode := "composed"
	if revised {
		mode = "revised"
	}
	m.PlansComposed.WithLabelValues(mode).Inc()
}

func (m *Metrics) NotificationAdded(level string) {
	m.Notifications.WithLabelValues(level).Inc()
}

func (m *Metrics) ToastsActive(n int) {
	m.ActiveToasts.Set(float64(n))
}
