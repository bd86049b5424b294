package replay

import "time"

// RecordStatus tags a ResultRecord as a success or an error.
type RecordStatus string

const (
	StatusSuccess RecordStatus = "success"
	StatusError   RecordStatus = "error"
)

// ResultRecord is the outcome of one Task, written to the sink exactly once.
// Times are unix seconds and durations are seconds. Error records leave the
// token, throughput and routing fields at their zero values.
type ResultRecord struct {
	RequestID       int64        `json:"request_id"`
	Status          RecordStatus `json:"status"`
	ErrorType       string       `json:"error_type,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	Input           []Message    `json:"input"`
	Output          string       `json:"output"`
	PromptTokens    int64        `json:"prompt_tokens"`
	OutputTokens    int64        `json:"output_tokens"`
	TotalTokens     int64        `json:"total_tokens"`
	Latency         float64      `json:"latency"`
	Throughput      float64      `json:"throughput"`
	StartTime       float64      `json:"start_time"`
	EndTime         float64      `json:"end_time"`
	TTFT            *float64     `json:"ttft"`
	TPOT            *float64     `json:"tpot"`
	TargetPod       string       `json:"target_pod"`
	TargetRequestID string       `json:"target_request_id"`
	SessionID       *int64       `json:"session_id"`
}

// Succeeded reports whether the record is a Success variant.
func (r *ResultRecord) Succeeded() bool {
	return r.Status == StatusSuccess
}

// newErrorRecord builds the Error variant for a task that failed between
// start and end.
func newErrorRecord(task *Task, input []Message, start, end time.Time, err error) *ResultRecord {
	return &ResultRecord{
		RequestID:    task.RequestID,
		Status:       StatusError,
		ErrorType:    ErrorKind(err),
		ErrorMessage: err.Error(),
		Input:        input,
		Latency:      end.Sub(start).Seconds(),
		StartTime:    unixSeconds(start),
		EndTime:      unixSeconds(end),
		SessionID:    task.SessionID,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func float64Ptr(v float64) *float64 {
	return &v
}
