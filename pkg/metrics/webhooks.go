package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records provider webhook ingestion outcomes.
type WebhookMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
	duplicate *prometheus.CounterVec
	failure   *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of webhook processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_processed_total",
		Help: "Webhook deliveries applied to domain state.",
	}, []string{"provider"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_duplicate_total",
		Help: "Webhook deliveries dropped as replays.",
	}, []string{"provider"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failure_total",
		Help: "Webhook deliveries that failed processing.",
	}, []string{"provider"})
	reg.MustRegister(duration, processed, duplicate, failure)
	return &WebhookMetrics{
		duration:  duration,
		processed: processed,
		duplicate: duplicate,
		failure:   failure,
	}
}

// ObserveDuration records the processing time for the named provider.
func (w *WebhookMetrics) ObserveDuration(provider string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}

// IncProcessed increments the applied counter for the named provider.
func (w *WebhookMetrics) IncProcessed(provider string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncDuplicate increments the replay counter for the named provider.
func (w *WebhookMetrics) IncDuplicate(provider string) {
	if w == nil || w.duplicate == nil {
		return
	}
	w.duplicate.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFailure increments the failure counter for the named provider.
func (w *WebhookMetrics) IncFailure(provider string) {
	if w == nil || w.failure == nil {
		return
	}
	w.failure.WithLabelValues(normalizeLabel(provider)).Inc()
}

func normalizeLabel(provider string) string {
	if provider == "" {
		return "unknown"
	}
	return provider
}
