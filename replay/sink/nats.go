package sink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/inference-sim/inference-replay/replay"
)

// Message headers set on every published record.
const (
	HeaderRunID     = "Replay-Run-Id"
	HeaderRequestID = "Replay-Request-Id"
	HeaderStatus    = "Replay-Status"
)

// publisher is the part of *nats.Conn the sink needs.
type publisher interface {
	PublishMsg(msg *nats.Msg) error
	Flush() error
}

// NATSSink publishes each record as JSON on a subject.
type NATSSink struct {
	pub     publisher
	subject string
	runID   string
	close   func() error
}

// ConnectNATSSink dials url and publishes on subject.
func ConnectNATSSink(url, subject, runID string) (*NATSSink, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	nc, err := nats.Connect(url,
		nats.Name("inference-replay"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSSink{pub: nc, subject: subject, runID: runID, close: nc.Drain}, nil
}

// Append publishes rec and flushes, so the server has it on return.
func (s *NATSSink) Append(rec *replay.ResultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding result %d: %w", rec.RequestID, err)
	}
	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set(HeaderRunID, s.runID)
	msg.Header.Set(HeaderRequestID, strconv.FormatInt(rec.RequestID, 10))
	msg.Header.Set(HeaderStatus, string(rec.Status))
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing result %d: %w", rec.RequestID, err)
	}
	if err := s.pub.Flush(); err != nil {
		return fmt.Errorf("flushing result %d: %w", rec.RequestID, err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
