package replay

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds reported in ResultRecord.ErrorType.
const (
	ErrorKindTransport = "TransportFailure" // failed before any response data
	ErrorKindAPI       = "APIError"         // non-2xx status from the server
	ErrorKindTimeout   = "Timeout"          // collaborator deadline exceeded
	ErrorKindCanceled  = "Canceled"         // run shut down before dispatch
)

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid replay config")

// IssueError is returned by an Issuer to name the kind of failure.
type IssueError struct {
	Kind       string
	StatusCode int // HTTP status for ErrorKindAPI, 0 otherwise
	Err        error
}

func (e *IssueError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IssueError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies err for ResultRecord.ErrorType.
func ErrorKind(err error) string {
	var issueErr *IssueError
	switch {
	case errors.As(err, &issueErr) && issueErr.Kind != "":
		return issueErr.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	default:
		return ErrorKindTransport
	}
}
