package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athenakit_executions_total",
			Help: "Total number of query executions by terminal outcome.",
		},
		[]string{"outcome"},
	)
	executionPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenakit_execution_polls_total",
			Help: "Total number of execution status requests.",
		},
	)
	dataScannedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenakit_data_scanned_bytes_total",
			Help: "Bytes scanned by successful executions as reported by the service.",
		},
	)
	engineExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "athenakit_engine_execution_seconds",
			Help:    "Engine execution time of successful executions.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
	fetchedObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenakit_fetched_objects_total",
			Help: "Total number of result objects read from the object store.",
		},
	)
	fetchedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenakit_fetched_bytes_total",
			Help: "Total number of result object bytes read before decompression.",
		},
	)
	fetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "athenakit_fetch_duration_seconds",
			Help:    "Wall time to list, decode and merge one result set.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)
	listenerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athenakit_listener_requests_total",
			Help: "Requests served by the metrics listener by path and status.",
		},
		[]string{"path", "status"},
	)
	listenerRequestSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "athenakit_listener_request_seconds",
			Help:    "Time spent serving metrics listener requests.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)

func init() {
	prometheus.MustRegister(
		executionsTotal,
		executionPollsTotal,
		dataScannedBytesTotal,
		engineExecutionSeconds,
		fetchedObjectsTotal,
		fetchedBytesTotal,
		fetchDurationSeconds,
		listenerRequestsTotal,
		listenerRequestSeconds,
	)
}

func IncrementExecutionPolls() {
	executionPollsTotal.Inc()
}

// ObserveExecution records a finished execution. Statistics are only added for
// successful runs.
func ObserveExecution(outcome string, engineTime time.Duration, scannedBytes int64) {
	executionsTotal.WithLabelValues(outcome).Inc()
	if outcome != "succeeded" {
		return
	}
	engineExecutionSeconds.Observe(engineTime.Seconds())
	if scannedBytes > 0 {
		dataScannedBytesTotal.Add(float64(scannedBytes))
	}
}

func ObserveFetchedObject(sizeBytes int) {
	fetchedObjectsTotal.Inc()
	fetchedBytesTotal.Add(float64(sizeBytes))
}

func ObserveFetch(outcome string, elapsed time.Duration) {
	fetchDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
