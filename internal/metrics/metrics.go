package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "strategy"

var (
	// WorkerUp is 1 while the supervisor believes the worker slot holds a
	// live process.
	WorkerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_up",
		Help:      "Whether the strategy worker process is currently running.",
	})

	Starts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "starts_total",
		Help:      "Start attempts by outcome.",
	}, []string{"outcome"})

	Stops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stops_total",
		Help:      "Stop attempts by outcome.",
	}, []string{"outcome"})

	Resets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resets_total",
		Help:      "Reset attempts by outcome.",
	}, []string{"outcome"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordRequest instruments one finished API request.
func RecordRequest(method, path, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
