package ingest

import (
	"time"

	"evtriage/core"
	"evtriage/metrics"
	"evtriage/util/goroutine"

	"go.uber.org/zap"
)

// DeserializeStats summarises one DeserializeAll call.
type DeserializeStats struct {
	Batches int
	Records int
	Parsed  int
	Dropped int
}

type batchResult struct {
	events  []*core.Event
	dropped int
}

// parseRecord is swapped in tests to exercise the panic path.
var parseRecord = ParseEvent

// DeserializeAll parses every batch on a pool of workers goroutines and
// returns the events in completion order. A record that fails to parse is
// dropped; nothing else stops the run. The call returns once every batch has
// reported, so no worker outlives it.
func DeserializeAll(batches [][]core.RawRecord, workers int, logger *zap.SugaredLogger) ([]*core.Event, DeserializeStats) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	stats := DeserializeStats{Batches: len(batches)}
	for _, b := range batches {
		stats.Records += len(b)
	}
	if len(batches) == 0 {
		return nil, stats
	}

	results := make(chan batchResult, len(batches))
	pool := core.NewWorkerPool(workers, len(batches), "deserialize", logger)
	if err := pool.Start(); err != nil {
		logger.Errorw("Failed to start deserialization pool", "error", err)
		metrics.RecordsDropped.WithLabelValues("parse").Add(float64(stats.Records))
		stats.Dropped = stats.Records
		return nil, stats
	}
	poolStats := pool.GetStats()
	logger.Debugw("Deserialization pool started",
		"workers", poolStats.Workers,
		"capacity", poolStats.Capacity,
		"batches", stats.Batches)

	for i, batch := range batches {
		task := func() {
			res := &batchResult{events: make([]*core.Event, 0, len(batch))}
			defer func() { results <- *res }()
			defer goroutine.RecoverThen("deserialize-batch", logger, func(any) {
				// Records already dropped inside the batch were counted there.
				rest := len(batch) - len(res.events) - res.dropped
				res.dropped += rest
				metrics.RecordsDropped.WithLabelValues("parse").Add(float64(rest))
			})
			deserializeBatch(i, batch, res, logger)
		}
		if err := pool.Submit(task); err != nil {
			logger.Errorw("Failed to submit batch", "batch", i, "error", err)
			metrics.RecordsDropped.WithLabelValues("parse").Add(float64(len(batch)))
			results <- batchResult{dropped: len(batch)}
		}
	}

	events := make([]*core.Event, 0, stats.Records)
	for range batches {
		res := <-results
		events = append(events, res.events...)
		stats.Dropped += res.dropped
	}
	pool.Stop()

	stats.Parsed = len(events)
	logger.Debugw("Deserialization finished",
		"batches", stats.Batches,
		"records", stats.Records,
		"parsed", stats.Parsed,
		"dropped", stats.Dropped)
	return events, stats
}

// deserializeBatch fills res as it goes so a panic part way through leaves
// an accurate partial result behind.
func deserializeBatch(index int, batch []core.RawRecord, res *batchResult, logger *zap.SugaredLogger) {
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	for _, raw := range batch {
		event, err := parseRecord(raw)
		if err != nil {
			res.dropped++
			metrics.RecordsDropped.WithLabelValues("parse").Inc()
			logger.Debugw("Dropping unparseable record", "batch", index, "record_id", raw.RecordID, "error", err)
			continue
		}
		res.events = append(res.events, event)
		metrics.RecordsParsed.Inc()
	}
}
