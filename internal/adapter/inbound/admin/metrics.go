package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for AppLock Forge.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RuleMutationsTotal *prometheus.CounterVec
	SimulationsTotal   *prometheus.CounterVec
	AuthFailures       prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "applockforge",
				Name:      "requests_total",
				Help:      "Total number of admin API requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "applockforge",
				Name:      "request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RuleMutationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "applockforge",
				Name:      "rule_mutations_total",
				Help:      "Total rule mutations by change type",
			},
			[]string{"change"}, // change=created/updated/deleted/imported
		),
		SimulationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "applockforge",
				Name:      "simulations_total",
				Help:      "Total simulated file accesses by outcome",
			},
			[]string{"outcome"}, // outcome=allowed/denied/denied_default
		),
		AuthFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "applockforge",
				Name:      "auth_failures_total",
				Help:      "Total rejected admin API requests",
			},
		),
	}
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and durations. A nil Metrics
// makes it a no-op passthrough.
func (h *AdminHandler) metricsMiddleware(next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		h.metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		h.metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// countMutation increments the rule mutation counter when metrics are wired.
func (h *AdminHandler) countMutation(change string) {
	if h.metrics != nil {
		h.metrics.RuleMutationsTotal.WithLabelValues(change).Inc()
	}
}

// countSimulations increments the simulation outcome counter.
func (h *AdminHandler) countSimulations(outcomes ...string) {
	if h.metrics == nil {
		return
	}
	for _, o := range outcomes {
		h.metrics.SimulationsTotal.WithLabelValues(o).Inc()
	}
}
