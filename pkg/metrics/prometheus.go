package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	pagesFetched  *prometheus.CounterVec
	rowsSaved     *prometheus.CounterVec
	rowsDuplicate *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		pagesFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpull_pages_fetched_total",
				Help: "Total number of upstream pages fetched",
			},
			[]string{"instrument"},
		),
		rowsSaved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpull_rows_saved_total",
				Help: "Total number of flow rows persisted",
			},
			[]string{"instrument"},
		),
		rowsDuplicate: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpull_rows_duplicate_total",
				Help: "Total number of flow rows skipped as duplicates",
			},
			[]string{"instrument"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpull_upstream_retries_total",
				Help: "Total number of upstream call retries",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowpull_last_price",
				Help: "Last streamed price for an instrument",
			},
			[]string{"instrument"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPageFetched records one upstream page fetch for an instrument.
func (r *Recorder) RecordPageFetched(instrument string) {
	r.pagesFetched.WithLabelValues(instrument).Inc()
}

// RecordRowsSaved records persisted rows for an instrument.
func (r *Recorder) RecordRowsSaved(instrument string, n int) {
	r.rowsSaved.WithLabelValues(instrument).Add(float64(n))
}

// RecordRowsDuplicate records rows skipped as duplicates.
func (r *Recorder) RecordRowsDuplicate(instrument string, n int) {
	r.rowsDuplicate.WithLabelValues(instrument).Add(float64(n))
}

// RecordRetry records an upstream retry attempt.
func (r *Recorder) RecordRetry(reason string) {
	r.retriesTotal.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last streamed price for an instrument.
func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
