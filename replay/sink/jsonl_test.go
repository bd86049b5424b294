package sink

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/inference-replay/replay"
)

func TestJSONLSink_OneLinePerRecord(t *testing.T) {
	// GIVEN a JSONL sink
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewJSONLSink(path)
	require.NoError(t, err)

	// WHEN a success and an error are appended
	require.NoError(t, s.Append(successRecord(0, replay.SessionPtr(3))))
	require.NoError(t, s.Append(errorRecord(1)))

	// THEN the file already has both lines before Close
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.NoError(t, s.Close())

	// AND the wire names match the result format
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	for _, key := range []string{"request_id", "status", "input", "output", "prompt_tokens", "output_tokens",
		"total_tokens", "latency", "throughput", "start_time", "end_time", "ttft", "tpot",
		"target_pod", "target_request_id", "session_id"} {
		assert.Contains(t, first, key)
	}
	assert.NotContains(t, first, "error_type", "success records omit error fields")
	assert.Contains(t, lines[0], "<world>", "HTML is not escaped")

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", second["status"])
	assert.Equal(t, replay.ErrorKindAPI, second["error_type"])
	assert.Nil(t, second["ttft"])
	assert.Nil(t, second["session_id"])
}

func TestReadJSONL_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewJSONLSink(path)
	require.NoError(t, err)
	want := successRecord(7, replay.SessionPtr(2))
	require.NoError(t, s.Append(want))
	require.NoError(t, s.Close())

	got, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
}

type failingSink struct {
	appended int
	err      error
}

func (f *failingSink) Append(*replay.ResultRecord) error {
	f.appended++
	return f.err
}

func (f *failingSink) Close() error { return f.err }

func TestMultiSink_TriesEverySink(t *testing.T) {
	bad := &failingSink{err: errors.New("disk full")}
	good := &failingSink{}
	m := MultiSink{bad, good}

	err := m.Append(errorRecord(0))

	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, bad.appended)
	assert.Equal(t, 1, good.appended)
	assert.ErrorContains(t, m.Close(), "disk full")
	assert.NoError(t, MultiSink{good}.Append(errorRecord(1)))
}
