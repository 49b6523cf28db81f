package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inventory_sync"

// Metrics holds the sync engine's prometheus collectors
type Metrics struct {
	WebhookDeliveries *prometheus.CounterVec
	WebhookReconciles *prometheus.CounterVec
	PullRuns          *prometheus.CounterVec
	PullDuration      prometheus.Histogram
	PushAttempts      *prometheus.CounterVec
	StockEvents       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhookDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Inbound Shopify webhook deliveries by topic and outcome.",
		}, []string{"topic", "outcome"}),
		WebhookReconciles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_reconcile_total",
			Help:      "Webhook subscription reconciliations by result.",
		}, []string{"result"}),
		PullRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_runs_total",
			Help:      "Catalog and inventory pulls by result.",
		}, []string{"result"}),
		PullDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pull_duration_seconds",
			Help:      "Duration of a full pull.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		PushAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_attempts_total",
			Help:      "Outbound inventory level writes by result.",
		}, []string{"result"}),
		StockEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_events_consumed_total",
			Help:      "Local stock change events by source.",
		}, []string{"source"}),
		gatherer: reg,
	}
}

// NewNop returns metrics on a private registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
