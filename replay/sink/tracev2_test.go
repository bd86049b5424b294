package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inference-sim/inference-replay/replay"
)

func TestTraceV2Sink_ExportsSortedRowsWithRounds(t *testing.T) {
	// GIVEN records of one session plus a stateless error, out of id order
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "header.yaml")
	dataPath := filepath.Join(dir, "data.csv")
	s := NewTraceV2Sink(TraceHeader{
		RunID:  "run-1",
		Server: &TraceServerConfig{Endpoint: "http://gw", Model: "m", RoutingStrategy: "random"},
		Replay: &TraceReplayConfig{PoolSize: 4, ScaleFactor: 0.5, Streaming: true},
	}, headerPath, dataPath)

	for _, rec := range []*replay.ResultRecord{
		errorRecord(2),
		successRecord(0, replay.SessionPtr(8)),
		successRecord(1, replay.SessionPtr(8)),
	} {
		if err := s.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	// WHEN closed
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// THEN the trace loads back with header and ordered rows
	loaded, err := LoadTraceV2(headerPath, dataPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Header.Version != 2 || loaded.Header.Mode != "real" || loaded.Header.RunID != "run-1" {
		t.Errorf("header = %+v", loaded.Header)
	}
	if loaded.Header.Replay == nil || loaded.Header.Replay.ScaleFactor != 0.5 {
		t.Errorf("replay config not preserved: %+v", loaded.Header.Replay)
	}
	if len(loaded.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(loaded.Records))
	}
	for i, r := range loaded.Records {
		if r.RequestID != int64(i) {
			t.Errorf("row %d has request id %d", i, r.RequestID)
		}
	}

	r0, r1, r2 := loaded.Records[0], loaded.Records[1], loaded.Records[2]
	if r0.SessionID != "8" || r0.RoundIndex != 0 || r1.RoundIndex != 1 {
		t.Errorf("session rounds = (%q,%d), (%q,%d)", r0.SessionID, r0.RoundIndex, r1.SessionID, r1.RoundIndex)
	}
	if r0.SendTimeUs != 1_700_000_000_500_000 {
		t.Errorf("send_time_us = %d", r0.SendTimeUs)
	}
	if got := r0.FirstChunkTimeUs - r0.SendTimeUs; got < 49_990 || got > 50_010 {
		t.Errorf("ttft in trace = %dus, want ~50000", got)
	}
	if r2.Status != "error" || r2.FirstChunkTimeUs != 0 || r2.SessionID != "" {
		t.Errorf("error row = %+v", r2)
	}
	if !strings.Contains(r2.ErrorMessage, "boom") {
		t.Errorf("error message = %q", r2.ErrorMessage)
	}
}

func TestLoadTraceV2_ShortRow_Error(t *testing.T) {
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "h.yaml")
	dataPath := filepath.Join(dir, "d.csv")
	if err := os.WriteFile(headerPath, []byte("trace_version: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dataPath, []byte(strings.Join(traceV2Columns, ",")+"\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTraceV2(headerPath, dataPath); err == nil {
		t.Error("expected error for short row")
	}
}
