// Package core defines the domain model shared by the triage pipeline.
//
// # Types
//
// The core package provides:
//   - RawRecord, the decoder's output: a record id plus the record as XML
//   - Event, the structured form produced by ingest.ParseEvent
//   - Finding, the unit a detector reports
//   - WorkerPool, the fixed-size goroutine pool used for deserialization
//
// Events are immutable after parsing. Detectors receive a pointer for the
// duration of one Observe call and must not retain or modify it.
package core
