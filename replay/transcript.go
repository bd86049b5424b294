package replay

import "sync"

// Chat roles used in transcripts and issued prompts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TranscriptStore holds the conversation history of every session seen in a
// run. Safe for concurrent use; its lock is independent of SessionAdmission's.
type TranscriptStore struct {
	mu       sync.Mutex
	sessions map[int64][]Message
}

// NewTranscriptStore creates an empty store.
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{sessions: make(map[int64][]Message)}
}

// Prompt assembles the messages for a new user turn. For a session request the
// prior turns come first; a stateless request gets the bare prompt.
// The store itself is not modified.
func (s *TranscriptStore) Prompt(sessionID *int64, prompt string) []Message {
	user := Message{Role: RoleUser, Content: prompt}
	if sessionID == nil {
		return []Message{user}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.sessions[*sessionID]
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, history...)
	return append(messages, user)
}

// RecordTurn appends a completed exchange (user prompt and assistant answer)
// to the session's history.
func (s *TranscriptStore) RecordTurn(sessionID int64, prompt, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID],
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: answer},
	)
}

// History returns a copy of the session's turns.
func (s *TranscriptStore) History(sessionID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.sessions[sessionID]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
