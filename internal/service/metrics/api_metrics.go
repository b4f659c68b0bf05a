package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stocksentinel",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of control API operations",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stocksentinel",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Failed control API operations",
		},
		[]string{"operation"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}

// Observe records one operation; failed marks it as an error.
func Observe(operation string, start time.Time, failed bool) {
	APILatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if failed {
		APIErrors.WithLabelValues(operation).Inc()
	}
}
