package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/inference-sim/inference-replay/replay"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS results (
	run_id            TEXT    NOT NULL,
	request_id        INTEGER NOT NULL,
	status            TEXT    NOT NULL,
	error_type        TEXT    NOT NULL DEFAULT '',
	error_message     TEXT    NOT NULL DEFAULT '',
	input             TEXT    NOT NULL,
	output            TEXT    NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	output_tokens     INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	latency           REAL    NOT NULL,
	throughput        REAL    NOT NULL DEFAULT 0,
	start_time        REAL    NOT NULL,
	end_time          REAL    NOT NULL,
	ttft              REAL,
	tpot              REAL,
	target_pod        TEXT    NOT NULL DEFAULT '',
	target_request_id TEXT    NOT NULL DEFAULT '',
	session_id        INTEGER,
	PRIMARY KEY (run_id, request_id)
);
CREATE INDEX IF NOT EXISTS idx_results_session ON results(run_id, session_id);
`

// SQLiteSink stores records in the results table, one row per request,
// keyed by run id so several runs can share a database.
type SQLiteSink struct {
	db     *sql.DB
	insert *sql.Stmt
	runID  string
}

// OpenSQLiteSink opens (or creates) the database at path.
func OpenSQLiteSink(path, runID string) (*SQLiteSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writers; one connection avoids busy retries.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(resultsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	insert, err := db.Prepare(`
INSERT INTO results (
	run_id, request_id, status, error_type, error_message, input, output,
	prompt_tokens, output_tokens, total_tokens, latency, throughput,
	start_time, end_time, ttft, tpot, target_pod, target_request_id, session_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &SQLiteSink{db: db, insert: insert, runID: runID}, nil
}

// Append inserts rec.
func (s *SQLiteSink) Append(rec *replay.ResultRecord) error {
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("encoding input of request %d: %w", rec.RequestID, err)
	}
	_, err = s.insert.Exec(
		s.runID, rec.RequestID, string(rec.Status), rec.ErrorType, rec.ErrorMessage,
		string(input), rec.Output,
		rec.PromptTokens, rec.OutputTokens, rec.TotalTokens, rec.Latency, rec.Throughput,
		rec.StartTime, rec.EndTime, nullFloat(rec.TTFT), nullFloat(rec.TPOT),
		rec.TargetPod, rec.TargetRequestID, nullInt(rec.SessionID),
	)
	if err != nil {
		return fmt.Errorf("insert result %d: %w", rec.RequestID, err)
	}
	return nil
}

// Close releases the database.
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	_ = s.insert.Close()
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
