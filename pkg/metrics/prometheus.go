package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	collections *prometheus.CounterVec
	signals     *prometheus.CounterVec
	generations *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		collections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocksentinel_collection_outcomes_total",
				Help: "Per-ticker price collection outcomes by status and tier",
			},
			[]string{"status", "source"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocksentinel_signals_total",
				Help: "Signals emitted by kind",
			},
			[]string{"kind"},
		),
		generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocksentinel_generation_total",
				Help: "Target generation attempts by outcome",
			},
			[]string{"outcome"},
		),
		resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocksentinel_target_resolution_total",
				Help: "Target lookups by resolution tier",
			},
			[]string{"tier"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocksentinel_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stocksentinel_last_price",
				Help: "Last collected price for a ticker",
			},
			[]string{"ticker"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stocksentinel_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCollection(status, source string) {
	r.collections.WithLabelValues(status, source).Inc()
}

func (r *Recorder) RecordSignal(kind string) {
	r.signals.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordGeneration(outcome string) {
	r.generations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordTargetResolution(tier string) {
	r.resolutions.WithLabelValues(tier).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordCollection(string, string) {}
func (Nop) RecordSignal(string) {}
func (Nop) RecordGeneration(string) {}
func (Nop) RecordTargetResolution(string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64) {}
