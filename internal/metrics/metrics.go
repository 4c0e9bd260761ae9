// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spv_distribution_build_info",
			Help: "Build information of the distribution engine",
		},
		[]string{"version"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spv_distribution_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spv_distribution_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	DistributionsCalculatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spv_distribution_calculated_total",
			Help: "Total number of distributions calculated, by distribution type",
		},
		[]string{"type"},
	)

	DistributionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spv_distribution_transitions_total",
			Help: "Total number of distribution status changes",
		},
		[]string{"to"},
	)

	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spv_distribution_approvals_total",
			Help: "Total number of approval attempts, by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spv_distribution_payments_total",
			Help: "Total number of allocation payment outcomes, by source and status",
		},
		[]string{"source", "status"}, // source: "bank", "csv", "manual"
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spv_distribution_payment_batches_total",
			Help: "Total number of bank payment batches, by outcome",
		},
		[]string{"status"},
	)

	GatewayRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spv_distribution_bank_gateway_request_duration_seconds",
			Help:    "Duration of bank gateway batch submissions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	DistributionsNeedingAttention = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spv_distribution_needing_attention",
			Help: "Processing distributions whose allocations are all final with at least one failed payment",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordGatewayCall records the latency of one bank submission.
func RecordGatewayCall(d time.Duration) {
	GatewayRequestDuration.Observe(d.Seconds())
}
