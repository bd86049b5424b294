// Implements the per-session mailbox, which holds tasks waiting for the
// session's in-flight request to finish. Tasks are enqueued on admission.

package replay

// mailbox is a FIFO of tasks belonging to one session.
type mailbox struct {
	queue []*Task
}

// Enqueue adds a task to the back of the mailbox.
func (m *mailbox) Enqueue(t *Task) {
	if t == nil {
		panic("mailbox.Enqueue: task must not be nil")
	}
	m.queue = append(m.queue, t)
}

// Len returns the number of tasks in the mailbox.
func (m *mailbox) Len() int {
	return len(m.queue)
}

// Dequeue removes and returns the task at the front.
// Returns nil if the mailbox is empty.
func (m *mailbox) Dequeue() *Task {
	if len(m.queue) == 0 {
		return nil
	}
	t := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return t
}
