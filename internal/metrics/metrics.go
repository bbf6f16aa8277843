// Package metrics exposes Prometheus instrumentation for the filing pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages.
const (
	StageResolve = "resolve"
	StageFetch   = "fetch"
	StageExtract = "extract"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form990_items_total",
			Help: "Total number of batch items by outcome",
		},
		[]string{"status"},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form990_batches_total",
			Help: "Total number of batches by result",
		},
		[]string{"result"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form990_upstream_requests_total",
			Help: "Requests made to the filing catalog by endpoint and status code",
		},
		[]string{"endpoint", "code"},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "form990_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"stage"},
	)

	batchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "form990_batch_duration_seconds",
			Help:    "Duration of whole batches",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
		},
	)

	inFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "form990_items_in_flight",
			Help: "Number of batch items currently being processed",
		},
	)
)

// ObserveItem counts one finished item.
func ObserveItem(status string) {
	itemsTotal.WithLabelValues(status).Inc()
}

// ObserveBatch counts one finished batch and its duration.
func ObserveBatch(result string, d time.Duration) {
	batchesTotal.WithLabelValues(result).Inc()
	batchDurationSeconds.Observe(d.Seconds())
}

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveUpstream counts a catalog request. A code of 0 means a transport error.
func ObserveUpstream(endpoint string, code int) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}

	upstreamRequestsTotal.WithLabelValues(endpoint, label).Inc()
}

// ItemStarted marks one item as in flight.
func ItemStarted() { inFlight.Inc() }

// ItemDone clears one in-flight item.
func ItemDone() { inFlight.Dec() }

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
