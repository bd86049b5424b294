package replay

import (
	"fmt"
	"sync"
)

// sessionState tracks whether a session has a request in flight and which of
// its tasks are waiting behind it.
type sessionState struct {
	running bool
	pending mailbox
}

// SessionAdmission gates tasks so that each session has at most one request
// in flight, and later turns run in the order they were admitted.
// Stateless tasks bypass the gate. Safe for concurrent use.
type SessionAdmission struct {
	mu       sync.Mutex
	sessions map[int64]*sessionState
}

// NewSessionAdmission creates an empty admission store.
func NewSessionAdmission() *SessionAdmission {
	return &SessionAdmission{sessions: make(map[int64]*sessionState)}
}

// TryAdmit reports whether the caller may enqueue task now. A false return
// means the task was parked in its session's mailbox and will come back from
// ReleaseNext; the caller must not enqueue it.
func (a *SessionAdmission) TryAdmit(task *Task) bool {
	if task.SessionID == nil {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.sessions[*task.SessionID]
	if !ok {
		state = &sessionState{}
		a.sessions[*task.SessionID] = state
	}
	if !state.running {
		state.running = true
		return true
	}
	state.pending.Enqueue(task)
	return false
}

// ReleaseNext is called once the session's in-flight task has completed.
// It returns the next parked task (the session stays running), or nil after
// marking the session idle.
// Panics if the session has no task in flight: that is an admission violation.
func (a *SessionAdmission) ReleaseNext(sessionID int64) *Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.sessions[sessionID]
	if !ok || !state.running {
		panic(fmt.Sprintf("admission violation: release of session %d with no task in flight", sessionID))
	}
	if next := state.pending.Dequeue(); next != nil {
		return next
	}
	state.running = false
	return nil
}

// Running reports whether the session currently has a task in flight.
func (a *SessionAdmission) Running(sessionID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.sessions[sessionID]
	return ok && state.running
}

// Pending returns the number of tasks parked behind the session's in-flight task.
func (a *SessionAdmission) Pending(sessionID int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if state, ok := a.sessions[sessionID]; ok {
		return state.pending.Len()
	}
	return 0
}
