// Package metrics holds the Prometheus collectors for the reconciliation
// engine and its HTTP surface. Collectors live on a private registry exposed
// through Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "posrecon"

// Registry is the registry every collector in this package is registered on.
var Registry = prometheus.NewRegistry()

var (
	// Operations counts engine operations by name and outcome code ("OK" on success).
	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Reconciliation engine operations by outcome.",
	}, []string{"operation", "code"})

	// Matches counts committed statement matches by criteria.
	Matches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_committed_total",
		Help:      "Statement matches committed to the ledger, by match criteria.",
	}, []string{"criteria"})

	// PreviewCandidates observes how many statements a preview evaluated.
	PreviewCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "preview_statements",
		Help:      "Open statements evaluated per auto-match preview.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	// HTTPRequests counts handled requests by route pattern, method and status.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	// HTTPDuration observes request latency by route pattern and method.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Operations,
		Matches,
		PreviewCandidates,
		HTTPRequests,
		HTTPDuration,
	)
}

// ObserveOperation records one engine operation outcome.
func ObserveOperation(operation, code string) {
	if code == "" {
		code = "OK"
	}
	Operations.WithLabelValues(operation, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
