// Package sink provides the destinations a replay run writes its result
// records to: a JSON Lines file, a SQLite table, a NATS subject and a
// trace v2 export. Every sink implements replay.Sink and is safe for
// concurrent use; Append returns once the record is durable (or published).
package sink
