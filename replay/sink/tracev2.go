package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/inference-replay/replay"
)

// TraceHeader captures metadata for trace v2 files.
type TraceHeader struct {
	Version      int    `yaml:"trace_version"`
	TimeUnit     string `yaml:"time_unit"`
	CreatedAt    string `yaml:"created_at,omitempty"`
	Mode         string `yaml:"mode"` // always "real" for replays
	RunID        string `yaml:"run_id"`
	WorkloadPath string `yaml:"workload_path,omitempty"`

	Server *TraceServerConfig `yaml:"server,omitempty"`
	Replay *TraceReplayConfig `yaml:"replay,omitempty"`
}

// TraceServerConfig describes the endpoint that was replayed against.
type TraceServerConfig struct {
	Endpoint        string `yaml:"endpoint,omitempty"`
	Model           string `yaml:"model,omitempty"`
	RoutingStrategy string `yaml:"routing_strategy,omitempty"`
}

// TraceReplayConfig records the engine settings of the run.
type TraceReplayConfig struct {
	PoolSize    int     `yaml:"pool_size"`
	ScaleFactor float64 `yaml:"scale_factor"`
	Streaming   bool    `yaml:"streaming"`
}

// TraceRecord represents one row in a trace v2 CSV.
type TraceRecord struct {
	RequestID        int64
	SessionID        string // empty for single-turn requests
	RoundIndex       int    // turn number within the session, from 0
	Status           string
	ErrorType        string
	PromptTokens     int64
	OutputTokens     int64
	TotalTokens      int64
	SendTimeUs       int64
	FirstChunkTimeUs int64 // 0 when no content was streamed
	LastChunkTimeUs  int64
	TargetPod        string
	TargetRequestID  string
	ErrorMessage     string
}

// TraceV2 combines header and records for a complete trace.
type TraceV2 struct {
	Header  TraceHeader
	Records []TraceRecord
}

// CSV column headers for trace v2 format.
var traceV2Columns = []string{
	"request_id", "session_id", "round_index", "status", "error_type",
	"prompt_tokens", "output_tokens", "total_tokens",
	"send_time_us", "first_chunk_time_us", "last_chunk_time_us",
	"target_pod", "target_request_id", "error_message",
}

// TraceV2Sink collects records in memory and exports them as a trace v2
// header and data file on Close.
type TraceV2Sink struct {
	header     TraceHeader
	headerPath string
	dataPath   string

	mu      sync.Mutex
	records []TraceRecord
	rounds  map[int64]int
}

// NewTraceV2Sink creates a sink exporting to headerPath and dataPath.
// Version, time unit, mode and creation time are filled in.
func NewTraceV2Sink(header TraceHeader, headerPath, dataPath string) *TraceV2Sink {
	header.Version = 2
	header.TimeUnit = "microseconds"
	header.Mode = "real"
	if header.CreatedAt == "" {
		header.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return &TraceV2Sink{
		header:     header,
		headerPath: headerPath,
		dataPath:   dataPath,
		rounds:     make(map[int64]int),
	}
}

// Append converts rec into a trace row. A session's records arrive in
// turn order, which gives the round index.
func (s *TraceV2Sink) Append(rec *replay.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := TraceRecord{
		RequestID:       rec.RequestID,
		Status:          string(rec.Status),
		ErrorType:       rec.ErrorType,
		PromptTokens:    rec.PromptTokens,
		OutputTokens:    rec.OutputTokens,
		TotalTokens:     rec.TotalTokens,
		SendTimeUs:      secondsToMicros(rec.StartTime),
		LastChunkTimeUs: secondsToMicros(rec.EndTime),
		TargetPod:       rec.TargetPod,
		TargetRequestID: rec.TargetRequestID,
		ErrorMessage:    rec.ErrorMessage,
	}
	if rec.TTFT != nil {
		row.FirstChunkTimeUs = secondsToMicros(rec.StartTime + *rec.TTFT)
	}
	if rec.SessionID != nil {
		row.SessionID = strconv.FormatInt(*rec.SessionID, 10)
		row.RoundIndex = s.rounds[*rec.SessionID]
		s.rounds[*rec.SessionID]++
	}
	s.records = append(s.records, row)
	return nil
}

// Close writes the trace, ordered by request id.
func (s *TraceV2Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.records, func(i, j int) bool {
		return s.records[i].RequestID < s.records[j].RequestID
	})
	return ExportTraceV2(&s.header, s.records, s.headerPath, s.dataPath)
}

func secondsToMicros(sec float64) int64 {
	return int64(sec * 1e6)
}

// ExportTraceV2 writes trace header (YAML) and data (CSV) to separate files.
// Timestamps use integer formatting to preserve microsecond precision.
func ExportTraceV2(header *TraceHeader, records []TraceRecord, headerPath, dataPath string) error {
	headerData, err := yaml.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling trace header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("creating trace data file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(traceV2Columns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.RequestID, 10),
			r.SessionID,
			strconv.Itoa(r.RoundIndex),
			r.Status,
			r.ErrorType,
			strconv.FormatInt(r.PromptTokens, 10),
			strconv.FormatInt(r.OutputTokens, 10),
			strconv.FormatInt(r.TotalTokens, 10),
			strconv.FormatInt(r.SendTimeUs, 10),
			strconv.FormatInt(r.FirstChunkTimeUs, 10),
			strconv.FormatInt(r.LastChunkTimeUs, 10),
			r.TargetPod,
			r.TargetRequestID,
			r.ErrorMessage,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", r.RequestID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing trace data: %w", err)
	}
	return file.Sync()
}

// LoadTraceV2 reads a trace v2 header (YAML) and data (CSV).
func LoadTraceV2(headerPath, dataPath string) (*TraceV2, error) {
	headerData, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("reading trace header: %w", err)
	}
	var header TraceHeader
	if err := yaml.Unmarshal(headerData, &header); err != nil {
		return nil, fmt.Errorf("parsing trace header: %w", err)
	}

	file, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("opening trace data: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var records []TraceRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		if len(row) < len(traceV2Columns) {
			return nil, fmt.Errorf("CSV row has %d columns, expected %d", len(row), len(traceV2Columns))
		}
		r, err := parseTraceRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return &TraceV2{Header: header, Records: records}, nil
}

func parseTraceRecord(row []string) (*TraceRecord, error) {
	var p rowParser
	r := &TraceRecord{
		RequestID:        p.int64(row, 0),
		SessionID:        row[1],
		RoundIndex:       int(p.int64(row, 2)),
		Status:           row[3],
		ErrorType:        row[4],
		PromptTokens:     p.int64(row, 5),
		OutputTokens:     p.int64(row, 6),
		TotalTokens:      p.int64(row, 7),
		SendTimeUs:       p.int64(row, 8),
		FirstChunkTimeUs: p.int64(row, 9),
		LastChunkTimeUs:  p.int64(row, 10),
		TargetPod:        row[11],
		TargetRequestID:  row[12],
		ErrorMessage:     strings.TrimSpace(row[13]),
	}
	if p.err != nil {
		return nil, p.err
	}
	return r, nil
}

// rowParser keeps the first numeric parse error of a row.
type rowParser struct {
	err error
}

func (p *rowParser) int64(row []string, col int) int64 {
	v, err := strconv.ParseInt(row[col], 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("CSV column %s: %w", traceV2Columns[col], err)
	}
	return v
}
