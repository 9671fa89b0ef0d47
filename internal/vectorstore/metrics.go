package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts store calls.
	// Labels: provider, op, result (success, error)
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expmem",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"provider", "op", "result"},
	)

	// operationDuration tracks store call latency.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "expmem",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	// dimensionMismatch is 1 while a collection's size disagrees with the
	// embedding backend.
	dimensionMismatch = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "expmem",
			Subsystem: "vectorstore",
			Name:      "dimension_mismatch",
			Help:      "1 if the collection dimensionality differs from the embedding dimensionality",
		},
		[]string{"collection"},
	)

	// scrolledPoints counts payloads returned by full scans.
	scrolledPoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expmem",
			Subsystem: "vectorstore",
			Name:      "scrolled_points_total",
			Help:      "Total number of points returned by full collection scans",
		},
		[]string{"provider"},
	)
)

// observe records the result and latency of one operation.
func observe(provider, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(provider, op, result).Inc()
	operationDuration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
}

func recordMismatch(collection string, mismatch bool) {
	v := 0.0
	if mismatch {
		v = 1
	}
	dimensionMismatch.WithLabelValues(collection).Set(v)
}
