package sink

import (
	"github.com/inference-sim/inference-replay/replay"
)

func successRecord(id int64, session *int64) *replay.ResultRecord {
	ttft := 0.05
	tpot := 0.01
	return &replay.ResultRecord{
		RequestID:       id,
		Status:          replay.StatusSuccess,
		Input:           []replay.Message{{Role: replay.RoleUser, Content: "hello <world>"}},
		Output:          "hi",
		PromptTokens:    4,
		OutputTokens:    6,
		TotalTokens:     10,
		Latency:         0.11,
		Throughput:      6 / 0.11,
		StartTime:       1_700_000_000.5,
		EndTime:         1_700_000_000.61,
		TTFT:            &ttft,
		TPOT:            &tpot,
		TargetPod:       "10.0.0.1",
		TargetRequestID: "req-1",
		SessionID:       session,
	}
}

func errorRecord(id int64) *replay.ResultRecord {
	return &replay.ResultRecord{
		RequestID:    id,
		Status:       replay.StatusError,
		ErrorType:    replay.ErrorKindAPI,
		ErrorMessage: "APIError (status 500): boom",
		StartTime:    1_700_000_001,
		EndTime:      1_700_000_001.2,
		Latency:      0.2,
	}
}
