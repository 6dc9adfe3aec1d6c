// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_requests_total",
			Help: "Completion Service round-trips by step and outcome (valid, invalid, network_error)",
		},
		[]string{"step", "outcome"},
	)

	ConsensusCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_cache_hits_total",
			Help: "Steps answered from the keyed cache without a network call",
		},
		[]string{"namespace"},
	)

	ConsensusExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_exhausted_total",
			Help: "Steps that ran out of retries before reaching the needed replies",
		},
		[]string{"step"},
	)

	CellsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cells_resolved_total",
			Help: "Per-SKU output cells written, by resolver",
		},
		[]string{"resolver"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of a full template resolution run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"marketplace", "country"},
	)
)
