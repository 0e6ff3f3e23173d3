package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtriage_records_decoded_total",
			Help: "Total number of raw records produced by the container decoder",
		},
		[]string{"format"},
	)

	RecordsParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evtriage_records_parsed_total",
			Help: "Total number of raw records deserialized into events",
		},
	)

	// RecordsDropped counts records removed from the pipeline.
	// Labels:
	//   - reason: "parse" for XML deserialization failures, "chunk" for
	//     container chunks the decoder could not read
	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtriage_records_dropped_total",
			Help: "Total number of records dropped before detection",
		},
		[]string{"reason"},
	)

	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtriage_events_routed_total",
			Help: "Total number of events handed to a specialized detector",
		},
		[]string{"detector"},
	)

	FindingsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtriage_findings_total",
			Help: "Total number of findings raised",
		},
		[]string{"detector"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evtriage_batch_deserialize_duration_seconds",
			Help:    "Time taken to deserialize one batch of records",
			Buckets: prometheus.DefBuckets,
		},
	)

	PatternsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtriage_patterns_rejected_total",
			Help: "Total number of user patterns that failed to compile",
		},
		[]string{"origin"},
	)

	RegexTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evtriage_regex_timeouts_total",
			Help: "Total number of pattern matches aborted by the match timeout",
		},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evtriage_worker_pool_active_workers",
			Help: "Number of running workers per pool",
		},
		[]string{"pool_type"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtriage_worker_pool_tasks_processed_total",
			Help: "Total number of tasks completed per pool",
		},
		[]string{"pool_type"},
	)
)
