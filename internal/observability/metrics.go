package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athenarun_query_executions_total",
			Help: "Total number of query executions by final state.",
		},
		[]string{"state"},
	)
	queryPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenarun_query_polls_total",
			Help: "Total number of query status polls.",
		},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "athenarun_query_duration_seconds",
			Help:    "Wall time from submission to final state.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"state"},
	)
	queryAbandonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenarun_query_abandoned_total",
			Help: "Total number of executions the runner stopped waiting for before a final state.",
		},
	)
	stagedObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenarun_staged_objects_total",
			Help: "Total number of datasets written to the object store.",
		},
	)
	stagedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athenarun_staged_bytes_total",
			Help: "Total parquet bytes written to the object store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queryExecutionsTotal,
		queryPollsTotal,
		queryDurationSeconds,
		queryAbandonedTotal,
		stagedObjectsTotal,
		stagedBytesTotal,
	)
}

func ObserveQueryPoll() {
	queryPollsTotal.Inc()
}

func ObserveQueryFinished(state string, elapsed time.Duration) {
	if state == "" {
		state = "unknown"
	}
	queryExecutionsTotal.WithLabelValues(state).Inc()
	queryDurationSeconds.WithLabelValues(state).Observe(elapsed.Seconds())
}

func ObserveQueryAbandoned() {
	queryAbandonedTotal.Inc()
}

func ObserveStaged(bytes int) {
	stagedObjectsTotal.Inc()
	if bytes > 0 {
		stagedBytesTotal.Add(float64(bytes))
	}
}
