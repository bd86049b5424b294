package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Engine owns the shared state of one replay run: the transcript store, the
// admission store and the dispatch queue. Run is meant to be called once.
type Engine struct {
	cfg         Config
	issuer      Issuer
	sink        Sink
	transcripts *TranscriptStore
	admission   *SessionAdmission
	queue       *DispatchQueue
	now         func() time.Time
}

// NewEngine validates cfg and creates an Engine.
func NewEngine(cfg Config, issuer Issuer, sink Sink) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if issuer == nil {
		return nil, errors.New("replay: issuer must not be nil")
	}
	if sink == nil {
		return nil, errors.New("replay: sink must not be nil")
	}
	return &Engine{
		cfg:         cfg,
		issuer:      issuer,
		sink:        sink,
		transcripts: NewTranscriptStore(),
		admission:   NewSessionAdmission(),
		queue:       NewDispatchQueue(cfg.queueCapacity()),
		now:         time.Now,
	}, nil
}

// Run replays slices and returns once every created task has produced its
// record and every worker has exited. Cancelling ctx stops the scheduler and
// records not-yet-dispatched tasks as canceled; requests already sent drain.
// Returns the number of tasks created and the scheduler's error, if any.
func (e *Engine) Run(ctx context.Context, slices []TimeSlice) (int, error) {
	var outstanding sync.WaitGroup

	collector := NewCollector(e.transcripts, e.admission, e.queue, e.sink, &outstanding)
	collector.now = e.now
	pool := NewWorkerPool(e.cfg, e.queue, e.transcripts, e.issuer, collector)
	pool.now = e.now
	scheduler := NewScheduler(e.admission, e.queue, &outstanding, e.cfg.ScaleFactor)
	scheduler.now = e.now

	logrus.Infof("Starting replay of %d time slices with %d workers (scale=%v, streaming=%v)",
		len(slices), e.cfg.PoolSize, e.cfg.ScaleFactor, e.cfg.Streaming)
	pool.Start(ctx)

	submitted, err := scheduler.Submit(ctx, slices)
	logrus.Infof("Producer completed, %d requests submitted", submitted)

	outstanding.Wait()
	pool.Stop()
	logrus.Infof("All %d requests completed", submitted)
	return submitted, err
}

// Transcripts returns the run's transcript store.
func (e *Engine) Transcripts() *TranscriptStore {
	return e.transcripts
}

// Admission returns the run's admission store.
func (e *Engine) Admission() *SessionAdmission {
	return e.admission
}
