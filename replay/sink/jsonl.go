package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/inference-sim/inference-replay/replay"
)

// JSONLSink writes one JSON object per line and syncs after every record,
// so a crash mid-run keeps every record already appended.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSink creates (or truncates) path.
func NewJSONLSink(path string) (*JSONLSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating results file: %w", err)
	}
	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	return &JSONLSink{file: file, enc: enc}, nil
}

// Append writes rec as one line.
func (s *JSONLSink) Append(rec *replay.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("writing result %d: %w", rec.RequestID, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing result %d: %w", rec.RequestID, err)
	}
	return nil
}

// Close closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// ReadJSONL reads every record of a results file written by JSONLSink.
func ReadJSONL(path string) ([]*replay.ResultRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening results file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []*replay.ResultRecord
	dec := json.NewDecoder(file)
	for dec.More() {
		var rec replay.ResultRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("parsing result %d: %w", len(records), err)
		}
		records = append(records, &rec)
	}
	return records, nil
}
