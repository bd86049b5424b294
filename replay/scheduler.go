package replay

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler walks the trace, assigns request ids and target dispatch times,
// and offers each task to admission control. It never sleeps on trace timing;
// workers wait for the target time.
type Scheduler struct {
	admission   *SessionAdmission
	queue       *DispatchQueue
	outstanding *sync.WaitGroup // one count per task until its record is written
	scaleFactor float64
	now         func() time.Time
	nextID      int64
}

// NewScheduler creates a Scheduler whose request ids start at 0.
func NewScheduler(admission *SessionAdmission, queue *DispatchQueue, outstanding *sync.WaitGroup, scaleFactor float64) *Scheduler {
	return &Scheduler{
		admission:   admission,
		queue:       queue,
		outstanding: outstanding,
		scaleFactor: scaleFactor,
		now:         time.Now,
	}
}

// Submit schedules every request of slices relative to a base time taken once
// at the start. Admitted tasks are pushed onto the dispatch queue; the rest
// wait in their session's mailbox. Cancelling ctx stops before the next slice.
// Returns the number of tasks created.
func (s *Scheduler) Submit(ctx context.Context, slices []TimeSlice) (int, error) {
	base := s.now()
	submitted := 0
	for _, slice := range slices {
		if err := ctx.Err(); err != nil {
			logrus.Warnf("Scheduler stopped after %d requests: %v", submitted, err)
			return submitted, err
		}
		target := base.Add(ScaledOffset(slice.OffsetMillis, s.scaleFactor))
		for _, req := range slice.Requests {
			task := NewTask(req, s.nextID, target)
			s.nextID++
			submitted++

			s.outstanding.Add(1)
			if s.admission.TryAdmit(task) {
				s.queue.Push(task)
				continue
			}
			logrus.Debugf("Request %d parked behind session %d (%d waiting)",
				task.RequestID, *task.SessionID, s.admission.Pending(*task.SessionID))
		}
	}
	return submitted, nil
}

// ScaledOffset converts a trace offset in milliseconds to a wall-clock delay.
// Fractions of a millisecond are kept down to the nanosecond.
func ScaledOffset(offsetMillis, scaleFactor float64) time.Duration {
	return time.Duration(offsetMillis * scaleFactor * float64(time.Millisecond))
}
