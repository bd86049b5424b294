package replay

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Collector turns responses into ResultRecords, advances session transcripts
// and releases each session's next task once the current one is recorded.
type Collector struct {
	transcripts *TranscriptStore
	admission   *SessionAdmission
	queue       *DispatchQueue
	sink        Sink
	outstanding *sync.WaitGroup
	now         func() time.Time
}

// NewCollector creates a Collector. outstanding is decremented once per
// recorded task.
func NewCollector(transcripts *TranscriptStore, admission *SessionAdmission, queue *DispatchQueue, sink Sink, outstanding *sync.WaitGroup) *Collector {
	return &Collector{
		transcripts: transcripts,
		admission:   admission,
		queue:       queue,
		sink:        sink,
		outstanding: outstanding,
		now:         time.Now,
	}
}

// CollectCompletion records a non-streamed response, or the error that
// replaced it.
func (c *Collector) CollectCompletion(task *Task, input []Message, dispatch time.Time, completion *Completion, err error) {
	end := c.now()
	if err != nil {
		c.Fail(task, input, dispatch, end, err)
		return
	}
	latency := end.Sub(dispatch).Seconds()
	c.finish(task, &ResultRecord{
		RequestID:       task.RequestID,
		Status:          StatusSuccess,
		Input:           input,
		Output:          completion.Text,
		PromptTokens:    completion.Usage.PromptTokens,
		OutputTokens:    completion.Usage.CompletionTokens,
		TotalTokens:     completion.Usage.TotalTokens,
		Latency:         latency,
		Throughput:      Throughput(completion.Usage.CompletionTokens, latency),
		StartTime:       unixSeconds(dispatch),
		EndTime:         unixSeconds(end),
		TargetPod:       completion.Routing.TargetPod,
		TargetRequestID: completion.Routing.TargetRequestID,
		SessionID:       task.SessionID,
	})
}

// CollectStream consumes a streamed response to the end. A failure before
// the first chunk yields an Error record; a failure after it keeps whatever
// was received and yields a Success record.
func (c *Collector) CollectStream(task *Task, input []Message, dispatch time.Time, stream ChunkStream, err error) {
	if err != nil {
		c.Fail(task, input, dispatch, c.now(), err)
		return
	}

	res := c.consume(task.RequestID, stream)
	if res.err != nil {
		if res.chunks == 0 {
			c.Fail(task, input, dispatch, res.end, res.err)
			return
		}
		logrus.Warnf("Request %d: stream interrupted after %d chunks: %v", task.RequestID, res.chunks, res.err)
	}

	latency := res.end.Sub(dispatch).Seconds()
	c.finish(task, &ResultRecord{
		RequestID:       task.RequestID,
		Status:          StatusSuccess,
		Input:           input,
		Output:          res.text,
		PromptTokens:    res.usage.PromptTokens,
		OutputTokens:    res.usage.CompletionTokens,
		TotalTokens:     res.usage.TotalTokens,
		Latency:         latency,
		Throughput:      Throughput(res.usage.CompletionTokens, latency),
		StartTime:       unixSeconds(dispatch),
		EndTime:         unixSeconds(res.end),
		TTFT:            TTFT(dispatch, res.firstSeen),
		TPOT:            TPOT(res.firstSeen, res.end, res.usage.CompletionTokens),
		TargetPod:       res.routing.TargetPod,
		TargetRequestID: res.routing.TargetRequestID,
		SessionID:       task.SessionID,
	})
}

// streamResult is what consume read from a stream.
type streamResult struct {
	text      string
	usage     Usage
	firstSeen time.Time
	end       time.Time
	chunks    int
	routing   RoutingInfo
	err       error
}

// consume reads stream to the end and closes it. The stream is closed before
// the record is written since the session's next turn may start right after.
// A panicking stream is reported as a transport failure in res.err.
func (c *Collector) consume(requestID int64, stream ChunkStream) (res streamResult) {
	var text strings.Builder
	defer func() {
		res.text = text.String()
		if res.end.IsZero() {
			res.end = c.now()
		}
	}()
	defer recoverIssuer(requestID, &res.err)
	defer func() {
		if err := stream.Close(); err != nil {
			logrus.Debugf("Request %d: closing stream: %v", requestID, err)
		}
	}()

	for stream.Next() {
		res.chunks++
		chunk := stream.Chunk()
		if chunk.Content != "" {
			if res.firstSeen.IsZero() {
				res.firstSeen = c.now()
			}
			text.WriteString(chunk.Content)
		}
		// Usage chunks carry complete totals, not increments.
		if chunk.Usage != nil {
			res.usage = *chunk.Usage
		}
	}
	res.end = c.now()
	res.err = stream.Err()
	res.routing = stream.Routing()
	return res
}

// Fail records an Error for task.
func (c *Collector) Fail(task *Task, input []Message, start, end time.Time, err error) {
	c.finish(task, newErrorRecord(task, input, start, end, err))
}

// finish writes rec and, for session tasks, releases the next turn. The
// record is written before the release so a session's records reach the
// sink in admission order.
func (c *Collector) finish(task *Task, rec *ResultRecord) {
	defer c.outstanding.Done()

	if task.SessionID != nil && rec.Succeeded() {
		c.transcripts.RecordTurn(*task.SessionID, task.Request.Prompt, rec.Output)
	}

	if rec.Succeeded() {
		logrus.Infof("Request %d: Completed successfully. Tokens: %d, Latency: %.2fs",
			rec.RequestID, rec.TotalTokens, rec.Latency)
	} else {
		logrus.Errorf("Request %d: Error (%s): %s", rec.RequestID, rec.ErrorType, rec.ErrorMessage)
	}
	if err := c.sink.Append(rec); err != nil {
		logrus.Errorf("Request %d: writing result: %v", rec.RequestID, err)
	}

	if task.SessionID != nil {
		if next := c.admission.ReleaseNext(*task.SessionID); next != nil {
			c.queue.Push(next)
		}
	}
}

// Throughput returns output tokens per second, or 0 when nothing was generated.
func Throughput(outputTokens int64, latencySeconds float64) float64 {
	if outputTokens <= 0 || latencySeconds <= 0 {
		return 0
	}
	return float64(outputTokens) / latencySeconds
}

// TTFT returns the time to first token in seconds, or nil if no content arrived.
func TTFT(dispatch, firstSeen time.Time) *float64 {
	if firstSeen.IsZero() {
		return nil
	}
	return float64Ptr(firstSeen.Sub(dispatch).Seconds())
}

// TPOT returns the mean time per output token after the first, in seconds.
// Nil when no content arrived or no tokens were reported.
func TPOT(firstSeen, end time.Time, outputTokens int64) *float64 {
	if firstSeen.IsZero() || outputTokens <= 0 {
		return nil
	}
	return float64Ptr(end.Sub(firstSeen).Seconds() / float64(outputTokens))
}
