// Package workload reads captured request traces into replay time slices.
//
// A trace is either a JSON array of slices or one slice per line (JSON Lines):
//
//	{"timestamp": 0, "requests": [{"prompt": "hi", "session_id": 3}]}
//	{"timestamp": 250, "requests": [{"prompt": "hello", "model": "llama-3"}]}
//
// timestamp is the offset from trace start in milliseconds and may be
// fractional. Request keys other than prompt, session_id and model (such as
// prompt_length or output_length) are ignored.
package workload

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/inference-sim/inference-replay/replay"
)

// ErrEmptyWorkload is returned when a trace holds no requests.
var ErrEmptyWorkload = errors.New("workload contains no requests")

type sliceJSON struct {
	Timestamp *float64      `json:"timestamp"`
	Requests  []requestJSON `json:"requests"`
}

type requestJSON struct {
	Prompt    *string `json:"prompt"`
	SessionID *int64  `json:"session_id"`
	Model     string  `json:"model"`
}

// Load reads the trace at path.
func Load(path string) ([]replay.TimeSlice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening workload: %w", err)
	}
	defer func() { _ = f.Close() }()
	slices, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("loading workload %s: %w", path, err)
	}
	return slices, nil
}

// Read decodes a trace from r and returns its slices sorted by offset.
// Slices sharing an offset keep their file order.
func Read(r io.Reader) ([]replay.TimeSlice, error) {
	br := bufio.NewReader(r)
	raw, err := decode(br)
	if err != nil {
		return nil, err
	}

	slices := make([]replay.TimeSlice, 0, len(raw))
	total := 0
	for i, s := range raw {
		slice, err := convert(i, s)
		if err != nil {
			return nil, err
		}
		total += len(slice.Requests)
		slices = append(slices, slice)
	}
	if total == 0 {
		return nil, ErrEmptyWorkload
	}
	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].OffsetMillis < slices[j].OffsetMillis
	})
	return slices, nil
}

// decode accepts a single JSON array or a stream of JSON objects.
func decode(br *bufio.Reader) ([]sliceJSON, error) {
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, ErrEmptyWorkload
	}
	if err != nil {
		return nil, fmt.Errorf("reading workload: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var out []sliceJSON
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("parsing workload array: %w", err)
		}
		return out, nil
	}

	var out []sliceJSON
	for {
		var s sliceJSON
		err := dec.Decode(&s)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing workload entry %d: %w", len(out), err)
		}
		out = append(out, s)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func convert(index int, s sliceJSON) (replay.TimeSlice, error) {
	if s.Timestamp == nil {
		return replay.TimeSlice{}, fmt.Errorf("entry %d: missing timestamp", index)
	}
	if *s.Timestamp < 0 {
		return replay.TimeSlice{}, fmt.Errorf("entry %d: negative timestamp %v", index, *s.Timestamp)
	}
	slice := replay.TimeSlice{
		OffsetMillis: *s.Timestamp,
		Requests:     make([]replay.RawRequest, 0, len(s.Requests)),
	}
	for j, r := range s.Requests {
		if r.Prompt == nil {
			return replay.TimeSlice{}, fmt.Errorf("entry %d request %d: missing prompt", index, j)
		}
		slice.Requests = append(slice.Requests, replay.RawRequest{
			Prompt:    *r.Prompt,
			SessionID: r.SessionID,
			Model:     r.Model,
		})
	}
	return slice, nil
}
