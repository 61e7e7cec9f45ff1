// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Request metrics
	RequestsIssued *prometheus.CounterVec
	PushRequests   *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec

	// Response metrics
	ResponsesApplied   *prometheus.CounterVec
	StaleResponses     *prometheus.CounterVec
	PatchesApplied     *prometheus.CounterVec
	PatchesIgnored     *prometheus.CounterVec
	SubscriptionErrors *prometheus.CounterVec

	// Latency metrics
	PullLatency *prometheus.HistogramVec
	PullErrors  *prometheus.CounterVec

	// Journal metrics
	JournalRecordsWritten prometheus.Counter
	JournalRecordsDropped prometheus.Counter

	// Health metrics
	PushConnected        prometheus.Gauge
	ActiveSubscriptions  *prometheus.GaugeVec
	LastSuccessfulUpdate prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_dashboard"
	}

	return &Metrics{
		RequestsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "requests_issued_total",
			Help:      "Total number of subscription requests by kind",
		}, []string{"kind"}),
		PushRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "push_requests_total",
			Help:      "Total number of requests emitted on the push channel",
		}, []string{"kind"}),
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pull_fallbacks_total",
			Help:      "Total number of HTTP pulls by kind and trigger",
		}, []string{"kind", "reason"}),
		ResponsesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "responses_applied_total",
			Help:      "Total number of full responses applied by kind and source",
		}, []string{"kind", "source"}),
		StaleResponses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "stale_responses_total",
			Help:      "Total number of responses discarded as stale",
		}, []string{"kind", "source"}),
		PatchesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "patches_applied_total",
			Help:      "Total number of token patches merged",
		}, []string{"kind"}),
		PatchesIgnored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "patches_ignored_total",
			Help:      "Total number of token patches for tokens outside the view",
		}, []string{"kind"}),
		SubscriptionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "errors_total",
			Help:      "Total number of subscription errors by kind and error class",
		}, []string{"kind", "class"}),
		PullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tokenapi",
			Name:      "pull_latency_seconds",
			Help:      "HTTP pull latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		PullErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokenapi",
			Name:      "pull_errors_total",
			Help:      "Total number of failed HTTP pulls",
		}, []string{"endpoint"}),
		JournalRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "records_written_total",
			Help:      "Total number of update records written to the journal",
		}),
		JournalRecordsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "records_dropped_total",
			Help:      "Total number of update records dropped (buffer full or write failure)",
		}),
		PushConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connected",
			Help:      "1 while the push channel is connected",
		}),
		ActiveSubscriptions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "active_subscriptions",
			Help:      "Number of open subscriptions by kind",
		}, []string{"kind"}),
		LastSuccessfulUpdate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_update_timestamp",
			Help:      "Unix timestamp of the last applied full response",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRequest counts a new subscription request.
func RecordRequest(kind string) {
	DefaultMetrics.RequestsIssued.WithLabelValues(kind).Inc()
}

// RecordPushRequest counts a request emitted on the push channel.
func RecordPushRequest(kind string) {
	DefaultMetrics.PushRequests.WithLabelValues(kind).Inc()
}

// RecordFallback counts an HTTP pull and what triggered it.
func RecordFallback(kind, reason string) {
	DefaultMetrics.Fallbacks.WithLabelValues(kind, reason).Inc()
}

// RecordResponseApplied counts an applied full response.
func RecordResponseApplied(kind, source string, unixSeconds float64) {
	DefaultMetrics.ResponsesApplied.WithLabelValues(kind, source).Inc()
	DefaultMetrics.LastSuccessfulUpdate.Set(unixSeconds)
}

// RecordStaleResponse counts a discarded response.
func RecordStaleResponse(kind, source string) {
	DefaultMetrics.StaleResponses.WithLabelValues(kind, source).Inc()
}

// RecordPatch counts a patch as merged or ignored.
func RecordPatch(kind string, applied bool) {
	if applied {
		DefaultMetrics.PatchesApplied.WithLabelValues(kind).Inc()
		return
	}
	DefaultMetrics.PatchesIgnored.WithLabelValues(kind).Inc()
}

// RecordSubscriptionError counts an error by class.
func RecordSubscriptionError(kind, class string) {
	DefaultMetrics.SubscriptionErrors.WithLabelValues(kind, class).Inc()
}

// RecordPullLatency records HTTP pull latency.
func RecordPullLatency(endpoint string, seconds float64, err error) {
	DefaultMetrics.PullLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.PullErrors.WithLabelValues(endpoint).Inc()
	}
}

// RecordJournal records journal throughput.
func RecordJournal(written, dropped int) {
	DefaultMetrics.JournalRecordsWritten.Add(float64(written))
	DefaultMetrics.JournalRecordsDropped.Add(float64(dropped))
}

// SetPushConnected updates the connection gauge.
func SetPushConnected(connected bool) {
	if connected {
		DefaultMetrics.PushConnected.Set(1)
		return
	}
	DefaultMetrics.PushConnected.Set(0)
}

// AddActiveSubscription adjusts the open subscription gauge by delta.
func AddActiveSubscription(kind string, delta int) {
	DefaultMetrics.ActiveSubscriptions.WithLabelValues(kind).Add(float64(delta))
}
