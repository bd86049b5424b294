package replay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAdmission_Stateless_AlwaysAdmitted(t *testing.T) {
	// GIVEN an admission store and several stateless tasks
	a := NewSessionAdmission()

	// WHEN each is offered
	// THEN every one is admitted immediately
	for i := int64(0); i < 5; i++ {
		task := NewTask(RawRequest{Prompt: "p"}, i, time.Now())
		assert.True(t, a.TryAdmit(task), "stateless task %d must bypass admission", i)
	}
}

func TestSessionAdmission_SecondTurn_ParkedUntilRelease(t *testing.T) {
	// GIVEN a session with one task admitted
	a := NewSessionAdmission()
	first := NewTask(RawRequest{Prompt: "a", SessionID: SessionPtr(7)}, 0, time.Now())
	second := NewTask(RawRequest{Prompt: "b", SessionID: SessionPtr(7)}, 1, time.Now())
	third := NewTask(RawRequest{Prompt: "c", SessionID: SessionPtr(7)}, 2, time.Now())
	require.True(t, a.TryAdmit(first))

	// WHEN two more turns arrive while the first is in flight
	assert.False(t, a.TryAdmit(second))
	assert.False(t, a.TryAdmit(third))

	// THEN they wait in order behind it
	assert.True(t, a.Running(7))
	assert.Equal(t, 2, a.Pending(7))

	// WHEN the in-flight task completes, the next turn is released in FIFO order
	assert.Same(t, second, a.ReleaseNext(7))
	assert.True(t, a.Running(7), "session stays running while a released task is in flight")
	assert.Same(t, third, a.ReleaseNext(7))

	// THEN draining the mailbox marks the session idle
	assert.Nil(t, a.ReleaseNext(7))
	assert.False(t, a.Running(7))

	// AND a later turn is admitted directly again
	fourth := NewTask(RawRequest{Prompt: "d", SessionID: SessionPtr(7)}, 3, time.Now())
	assert.True(t, a.TryAdmit(fourth))
}

func TestSessionAdmission_IndependentSessions_DoNotBlock(t *testing.T) {
	// GIVEN two sessions with one task each in flight
	a := NewSessionAdmission()
	require.True(t, a.TryAdmit(NewTask(RawRequest{SessionID: SessionPtr(1)}, 0, time.Now())))

	// WHEN a different session's task arrives
	// THEN it is admitted without waiting
	assert.True(t, a.TryAdmit(NewTask(RawRequest{SessionID: SessionPtr(2)}, 1, time.Now())))
	assert.Equal(t, 0, a.Pending(1))
	assert.Equal(t, 0, a.Pending(2))
}

func TestSessionAdmission_ReleaseIdleSession_Panics(t *testing.T) {
	a := NewSessionAdmission()
	assert.Panics(t, func() { a.ReleaseNext(99) }, "unknown session")

	require.True(t, a.TryAdmit(NewTask(RawRequest{SessionID: SessionPtr(1)}, 0, time.Now())))
	require.Nil(t, a.ReleaseNext(1))
	assert.Panics(t, func() { a.ReleaseNext(1) }, "session already idle")
}

func TestSessionAdmission_ConcurrentAdmitRelease_OneAdmittedAtATime(t *testing.T) {
	// GIVEN many goroutines offering turns of the same session concurrently
	a := NewSessionAdmission()
	const n = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if a.TryAdmit(NewTask(RawRequest{SessionID: SessionPtr(3)}, id, time.Now())) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()

	// THEN exactly one was admitted and the rest are parked
	assert.Equal(t, 1, admitted)
	assert.Equal(t, n-1, a.Pending(3))

	// AND releasing drains them one by one
	released := 0
	for a.ReleaseNext(3) != nil {
		released++
	}
	assert.Equal(t, n-1, released)
	assert.False(t, a.Running(3))
}
