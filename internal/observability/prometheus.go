package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics exports the collector hooks as Prometheus series.
type PrometheusMetrics struct {
	events        *prometheus.CounterVec
	deliveryCount prometheus.Histogram
	gatherer      prometheus.Gatherer
}

// NewPrometheusMetrics registers its series on a fresh registry.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.NewRegistry())
}

func NewPrometheusMetricsWithRegistry(namespace string, reg *prometheus.Registry) *PrometheusMetrics {
	m := &PrometheusMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages seen by the client, partitioned by event.",
		}, []string{"event"}),
		deliveryCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_delivery_count",
			Help:      "Delivery count of consumed messages.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.events, m.deliveryCount)
	return m
}

func (m *PrometheusMetrics) IncPublished() { m.events.WithLabelValues("published").Inc() }
func (m *PrometheusMetrics) IncPublishFailed() { m.events.WithLabelValues("publish_failed").Inc() }
func (m *PrometheusMetrics) IncReceived() { m.events.WithLabelValues("received").Inc() }
func (m *PrometheusMetrics) IncProcessed() { m.events.WithLabelValues("processed").Inc() }
func (m *PrometheusMetrics) IncFailed() { m.events.WithLabelValues("failed").Inc() }
func (m *PrometheusMetrics) IncRetried() { m.events.WithLabelValues("retried").Inc() }
func (m *PrometheusMetrics) IncSentToDLQ() { m.events.WithLabelValues("dlq").Inc() }
func (m *PrometheusMetrics) IncDuplicate() { m.events.WithLabelValues("duplicate").Inc() }
func (m *PrometheusMetrics) IncExpedited() { m.events.WithLabelValues("expedited").Inc() }

func (m *PrometheusMetrics) ObserveDeliveryCount(count int32) {
	m.deliveryCount.Observe(float64(count))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
