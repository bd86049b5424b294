package replay

import "fmt"

// DispatchQueue is the FIFO shared by the scheduler, the collector and the
// worker pool. A nil entry is the stop sentinel for one worker.
// Capacity only bounds how far ahead of the workers the scheduler can run.
type DispatchQueue struct {
	ch chan *Task
}

// NewDispatchQueue creates a queue holding up to capacity tasks (minimum 1).
func NewDispatchQueue(capacity int) *DispatchQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &DispatchQueue{ch: make(chan *Task, capacity)}
}

// Push enqueues t, blocking while the queue is full. Workers keep draining
// until they receive a sentinel, so a push never blocks forever.
// A task can be pushed at most once; a second push panics.
func (q *DispatchQueue) Push(t *Task) {
	if t == nil {
		panic("DispatchQueue.Push: task must not be nil")
	}
	if !t.enqueued.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("DispatchQueue.Push: request %d enqueued twice", t.RequestID))
	}
	q.ch <- t
}

// Pop blocks until a task or a stop sentinel is available.
// ok is false when the sentinel was received.
func (q *DispatchQueue) Pop() (t *Task, ok bool) {
	t = <-q.ch
	return t, t != nil
}

// Stop enqueues n stop sentinels, one per worker.
func (q *DispatchQueue) Stop(n int) {
	for i := 0; i < n; i++ {
		q.ch <- nil
	}
}

// Len returns the number of entries currently buffered.
func (q *DispatchQueue) Len() int {
	return len(q.ch)
}
