// Package metrics exposes Prometheus counters for the webhook and the
// dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	WebhookDeliveries *prometheus.CounterVec
	Events            *prometheus.CounterVec
	Dispatches        *prometheus.CounterVec
	GraphCalls        *prometheus.HistogramVec
	Generations       prometheus.Counter
}

// New registers the collectors on reg; pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhookDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sowerflow_webhook_deliveries_total",
				Help: "Webhook POSTs by response outcome",
			},
			[]string{"outcome"},
		),
		Events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sowerflow_events_total",
				Help: "Normalized events by kind and store decision",
			},
			[]string{"kind", "decision"},
		),
		Dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sowerflow_dispatch_total",
				Help: "Drain invocations by outcome",
			},
			[]string{"outcome"},
		),
		GraphCalls: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sowerflow_graph_call_duration_seconds",
				Help:    "Instagram Graph API call latency",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op", "outcome"},
		),
		Generations: f.NewCounter(prometheus.CounterOpts{
			Name: "sowerflow_generations_total",
			Help: "Replies drafted by the text generator",
		}),
	}
}

func (m *Metrics) RecordDelivery(outcome string) {
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordEvent(kind, decision string) {
	m.Events.WithLabelValues(kind, decision).Inc()
}

func (m *Metrics) RecordDispatch(outcome string) {
	m.Dispatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGeneration() {
	m.Generations.Inc()
}

// ObserveGraphCall satisfies instagram.Observer.
func (m *Metrics) ObserveGraphCall(op, outcome string, d time.Duration) {
	m.GraphCalls.WithLabelValues(op, outcome).Observe(d.Seconds())
}
