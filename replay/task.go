// Defines the trace units (TimeSlice, RawRequest) and the Task that flows from
// the scheduler through the dispatch queue to a worker.

package replay

import (
	"fmt"
	"sync/atomic"
	"time"
)

// RawRequest is one request as captured in the trace.
type RawRequest struct {
	Prompt    string // user turn text
	SessionID *int64 // multi-turn session link (nil for single-turn)
	Model     string // per-request model override (empty = run default)
}

// TimeSlice groups the requests that arrived at the same instant of the trace.
type TimeSlice struct {
	OffsetMillis float64 // offset from trace start, in milliseconds (may be fractional)
	Requests     []RawRequest
}

// Task is a RawRequest bound to its request id and absolute dispatch time.
// Created by the Scheduler and consumed exactly once by a worker.
type Task struct {
	Request            RawRequest
	RequestID          int64
	SessionID          *int64
	TargetDispatchTime time.Time

	enqueued atomic.Bool // set on the first push onto the dispatch queue
}

// NewTask builds a Task for req. The session id is taken from the request.
func NewTask(req RawRequest, requestID int64, target time.Time) *Task {
	return &Task{
		Request:            req,
		RequestID:          requestID,
		SessionID:          req.SessionID,
		TargetDispatchTime: target,
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("Task: (ID: %d, Session: %s, Target: %s)",
		t.RequestID, formatSession(t.SessionID), t.TargetDispatchTime.Format(time.RFC3339Nano))
}

// SessionPtr returns a pointer to a copy of id. Convenience for building
// RawRequests in code and tests.
func SessionPtr(id int64) *int64 {
	return &id
}

func formatSession(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}
