// Package replay provides the trace-driven load-generation engine.
//
// # Reading Guide
//
// Start with these files to understand the replay kernel:
//   - task.go: TimeSlice, RawRequest and Task, the units the scheduler moves around
//   - admission.go: per-session mailbox that keeps one request per session in flight
//   - scheduler.go: turns trace offsets into absolute dispatch times
//   - pool.go: fixed-size worker pool that waits for dispatch time and issues requests
//   - collector.go: turns a completion or a stream into a ResultRecord
//   - engine.go: wires the pieces together and drains the run on shutdown
//
// # Architecture
//
// The replay package defines the engine and its collaborator interfaces;
// implementations live in sub-packages:
//   - replay/client/: Issuer backed by an OpenAI-compatible endpoint
//   - replay/workload/: trace file loading
//   - replay/sink/: JSONL, SQLite, NATS and trace v2 result sinks
//   - replay/telemetry/: Prometheus collectors fed from result records
//
// # Key Interfaces
//
//   - Issuer: sends one chat completion, streaming or not
//   - ChunkStream: incremental view over a streamed completion
//   - Sink: append-only destination for ResultRecords
package replay
