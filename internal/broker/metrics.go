package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flightbroker_queue_items",
		Help: "Pending and in-progress items across all batches.",
	})

	itemsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightbroker_items_resolved_total",
		Help: "Items resolved by the worker pool.",
	}, []string{"source", "outcome"})

	lookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightbroker_lookup_duration_seconds",
		Help:    "Duration of live lookups.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"outcome"})

	batchesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightbroker_batches_submitted_total",
		Help: "Batches accepted for processing.",
	})
)

func outcome(r Result) string {
	if r.OK() {
		return "ok"
	}
	return "error"
}
