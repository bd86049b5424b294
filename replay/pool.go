package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// skewThreshold is how late a dispatch may be before it is logged.
const skewThreshold = 100 * time.Millisecond

// WorkerPool runs a fixed number of workers over the dispatch queue. A worker
// only blocks on the queue and on the dispatch timer; each issued request runs
// in its own tracked goroutine so in-flight responses never hold up dispatch.
type WorkerPool struct {
	size        int
	cfg         Config
	queue       *DispatchQueue
	transcripts *TranscriptStore
	issuer      Issuer
	collector   *Collector
	now         func() time.Time

	workers  errgroup.Group
	inflight sync.WaitGroup
}

// NewWorkerPool creates a pool with cfg.PoolSize workers.
func NewWorkerPool(cfg Config, queue *DispatchQueue, transcripts *TranscriptStore, issuer Issuer, collector *Collector) *WorkerPool {
	return &WorkerPool{
		size:        cfg.PoolSize,
		cfg:         cfg,
		queue:       queue,
		transcripts: transcripts,
		issuer:      issuer,
		collector:   collector,
		now:         time.Now,
	}
}

// Start launches the workers. Cancelling ctx cuts short dispatch waits; tasks
// that have not been issued yet are recorded as canceled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.workers.Go(func() error {
			p.work(ctx, i)
			return nil
		})
	}
}

// Stop sends one stop sentinel per worker and waits for every worker and
// every in-flight request to finish.
func (p *WorkerPool) Stop() {
	p.queue.Stop(p.size)
	_ = p.workers.Wait()
	p.inflight.Wait()
}

func (p *WorkerPool) work(ctx context.Context, worker int) {
	for {
		logrus.Tracef("Worker %d waiting for task...", worker)
		task, ok := p.queue.Pop()
		if !ok {
			logrus.Debugf("Worker %d exit.", worker)
			return
		}
		p.launch(ctx, worker, task)
	}
}

// launch assembles the prompt, waits for the target dispatch time and hands
// the request to an in-flight goroutine.
func (p *WorkerPool) launch(ctx context.Context, worker int, task *Task) {
	messages := p.transcripts.Prompt(task.SessionID, task.Request.Prompt)

	if err := p.waitUntil(ctx, task.TargetDispatchTime); err != nil {
		now := p.now()
		// Recording may push the session's next task; keep the worker off the queue.
		p.inflight.Go(func() { p.collector.Fail(task, messages, now, now, err) })
		return
	}

	dispatch := p.now()
	if late := dispatch.Sub(task.TargetDispatchTime); late > skewThreshold {
		logrus.Debugf("Worker %d: request %d dispatched %v behind schedule", worker, task.RequestID, late)
	}

	req := IssueRequest{
		RequestID:       task.RequestID,
		SessionID:       task.SessionID,
		Messages:        messages,
		Model:           p.model(task),
		MaxOutputTokens: p.cfg.MaxOutputTokens,
	}
	// Dispatched requests drain even when the run is being shut down.
	issueCtx := context.WithoutCancel(ctx)
	p.inflight.Go(func() {
		if p.cfg.Streaming {
			stream, err := p.stream(issueCtx, req)
			p.collector.CollectStream(task, messages, dispatch, stream, err)
			return
		}
		completion, err := p.complete(issueCtx, req)
		p.collector.CollectCompletion(task, messages, dispatch, completion, err)
	})
}

// waitUntil blocks until target or until ctx is done.
func (p *WorkerPool) waitUntil(ctx context.Context, target time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wait := target.Sub(p.now())
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) model(task *Task) string {
	if task.Request.Model != "" {
		return task.Request.Model
	}
	return p.cfg.Model
}

func (p *WorkerPool) complete(ctx context.Context, req IssueRequest) (c *Completion, err error) {
	defer recoverIssuer(req.RequestID, &err)
	return p.issuer.Complete(ctx, req)
}

func (p *WorkerPool) stream(ctx context.Context, req IssueRequest) (s ChunkStream, err error) {
	defer recoverIssuer(req.RequestID, &err)
	return p.issuer.Stream(ctx, req)
}

// recoverIssuer turns a panic in an Issuer or in one of its streams into a
// transport failure for that request so the run keeps going.
func recoverIssuer(requestID int64, err *error) {
	if r := recover(); r != nil {
		logrus.Errorf("Request %d: issuer panic: %v", requestID, r)
		*err = &IssueError{Kind: ErrorKindTransport, Err: fmt.Errorf("issuer panic: %v", r)}
	}
}
