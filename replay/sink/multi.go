package sink

import (
	"errors"

	"github.com/inference-sim/inference-replay/replay"
)

// MultiSink fans every record out to several sinks.
type MultiSink []replay.Sink

// Append offers rec to every sink and joins their errors.
func (m MultiSink) Append(rec *replay.ResultRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
