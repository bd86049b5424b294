package replay

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeIssuer answers every request after a fixed delay and tracks how many
// requests per session are in flight at once.
type fakeIssuer struct {
	delay    time.Duration
	failures map[int64]error // request id -> error returned instead of a response
	chunks   []Chunk         // streaming script; empty means one content chunk + usage

	mu          sync.Mutex
	inflight    map[int64]int
	maxInflight map[int64]int
	requests    []IssueRequest
}

func newFakeIssuer(delay time.Duration) *fakeIssuer {
	return &fakeIssuer{
		delay:       delay,
		failures:    make(map[int64]error),
		inflight:    make(map[int64]int),
		maxInflight: make(map[int64]int),
	}
}

func (f *fakeIssuer) enter(req IssueRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if req.SessionID == nil {
		return
	}
	id := *req.SessionID
	f.inflight[id]++
	if f.inflight[id] > f.maxInflight[id] {
		f.maxInflight[id] = f.inflight[id]
	}
}

func (f *fakeIssuer) leave(req IssueRequest) {
	if req.SessionID == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[*req.SessionID]--
}

func (f *fakeIssuer) Complete(_ context.Context, req IssueRequest) (*Completion, error) {
	f.enter(req)
	defer f.leave(req)
	time.Sleep(f.delay)
	if err := f.failures[req.RequestID]; err != nil {
		return nil, err
	}
	return &Completion{
		Text:    answerFor(req.RequestID),
		Usage:   Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
		Routing: RoutingInfo{TargetPod: "pod-a", TargetRequestID: fmt.Sprintf("srv-%d", req.RequestID)},
	}, nil
}

func (f *fakeIssuer) Stream(_ context.Context, req IssueRequest) (ChunkStream, error) {
	f.enter(req)
	if err := f.failures[req.RequestID]; err != nil {
		f.leave(req)
		return nil, err
	}
	chunks := f.chunks
	if len(chunks) == 0 {
		chunks = []Chunk{
			{Content: answerFor(req.RequestID)},
			{Usage: &Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}},
		}
	}
	return &fakeStream{chunks: chunks, gap: f.delay, onClose: func() { f.leave(req) }}, nil
}

func (f *fakeIssuer) maxInflightFor(session int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight[session]
}

func (f *fakeIssuer) requestFor(id int64) (IssueRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.RequestID == id {
			return r, true
		}
	}
	return IssueRequest{}, false
}

func answerFor(id int64) string {
	return fmt.Sprintf("answer-%d", id)
}

// fakeStream replays a fixed chunk script with a pause before each chunk.
// failAfter >= 0 ends the stream with err after that many chunks.
type fakeStream struct {
	chunks    []Chunk
	gap       time.Duration
	failAfter int
	err       error
	onClose   func()
	closeErr  error
	panicAt   int // Next panics once this many chunks were read (requires panics)
	panics    bool

	pos     int
	current Chunk
	closed  bool
}

func (s *fakeStream) Next() bool {
	if s.panics && s.pos >= s.panicAt {
		panic("stream decoder exploded")
	}
	if s.err != nil && s.pos >= s.failAfter {
		return false
	}
	if s.pos >= len(s.chunks) {
		return false
	}
	time.Sleep(s.gap)
	s.current = s.chunks[s.pos]
	s.pos++
	return true
}

func (s *fakeStream) Chunk() Chunk { return s.current }

func (s *fakeStream) Err() error {
	if s.err != nil && s.pos >= s.failAfter {
		return s.err
	}
	return nil
}

func (s *fakeStream) Routing() RoutingInfo { return RoutingInfo{TargetPod: "pod-s"} }

func (s *fakeStream) Close() error {
	if !s.closed && s.onClose != nil {
		s.onClose()
	}
	s.closed = true
	return s.closeErr
}

// memorySink keeps records in arrival order.
type memorySink struct {
	mu      sync.Mutex
	records []*ResultRecord
}

func (m *memorySink) Append(rec *ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) all() []*ResultRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ResultRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *memorySink) byID() map[int64]*ResultRecord {
	out := make(map[int64]*ResultRecord)
	for _, r := range m.all() {
		out[r.RequestID] = r
	}
	return out
}
