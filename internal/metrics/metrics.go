package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/bridgezone/market-api/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Webhook synchronizer

	WebhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "webhook_events_total",
		Help:      "Provider webhook events received, by type and outcome.",
	}, []string{"type", "outcome"})

	WebhookProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "market",
		Name:      "webhook_processing_duration_seconds",
		Help:      "Time spent applying one webhook event.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// Identity resolver

	LoginCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "login_codes_issued_total",
		Help:      "One-time login codes generated and dispatched.",
	})

	LoginCodeRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "login_code_rejections_total",
		Help:      "Login code requests rejected, by reason.",
	}, []string{"reason"})

	EmailsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "emails_sent_total",
		Help:      "Outbound emails, by outcome.",
	}, []string{"outcome"})

	// Sweeper

	SweeperRetriedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "sweeper_events_retried_total",
		Help:      "Failed webhook events re-applied by the sweeper, by outcome.",
	}, []string{"outcome"})

	SweeperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "market",
		Name:      "sweeper_cycle_duration_seconds",
		Help:      "Time taken for one sweeper retry cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "market",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		WebhookEventsTotal,
		WebhookProcessingDuration,
		LoginCodesIssuedTotal,
		LoginCodeRejectionsTotal,
		EmailsSentTotal,
		SweeperRetriedTotal,
		SweeperCycleDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer exposes /metrics plus the liveness/readiness probes on the
// operational port, away from the public API.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		status := http.StatusOK
		if !result.Up() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
