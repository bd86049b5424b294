package replay

import "context"

// IssueRequest is everything an Issuer needs to send one chat completion.
type IssueRequest struct {
	RequestID       int64
	SessionID       *int64
	Messages        []Message
	Model           string
	MaxOutputTokens int64 // 0 leaves the limit to the server
}

// Usage holds the token counts reported by the server.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// RoutingInfo identifies the backend that served a request, when the
// endpoint reports it. Both fields may be empty.
type RoutingInfo struct {
	TargetPod       string
	TargetRequestID string
}

// Completion is a non-streamed response.
type Completion struct {
	Text    string
	Usage   Usage
	Routing RoutingInfo
}

// Chunk is one increment of a streamed response. Usage is non-nil only on
// chunks that report token totals.
type Chunk struct {
	Content string
	Usage   *Usage
}

// ChunkStream iterates a streamed response:
//
//	for s.Next() {
//	    c := s.Chunk()
//	}
//	if err := s.Err(); err != nil { ... }
type ChunkStream interface {
	Next() bool
	Chunk() Chunk
	Err() error
	Routing() RoutingInfo
	Close() error
}

// Issuer sends requests to the model server. Retries, authentication and
// timeouts are the Issuer's own business.
type Issuer interface {
	Complete(ctx context.Context, req IssueRequest) (*Completion, error)
	Stream(ctx context.Context, req IssueRequest) (ChunkStream, error)
}

// Sink is an append-only destination for ResultRecords. Append must not return
// before the record is durable. Implementations must be safe for concurrent use.
type Sink interface {
	Append(rec *ResultRecord) error
	Close() error
}
