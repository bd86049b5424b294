// Aggregates per-run statistics from result records: request counts, error
// kinds, and latency / TTFT / TPOT / throughput distributions.

package replay

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
)

// Summary is a Sink that aggregates every record it receives.
// Safe for concurrent use.
type Summary struct {
	mu sync.Mutex

	total        int
	succeeded    int
	errorsByKind map[string]int
	promptTokens int64
	outputTokens int64
	latencies    []float64
	ttfts        []float64
	tpots        []float64
	throughputs  []float64
	firstStart   float64
	lastEnd      float64
}

// NewSummary creates an empty Summary.
func NewSummary() *Summary {
	return &Summary{errorsByKind: make(map[string]int)}
}

// Append folds rec into the summary.
func (s *Summary) Append(rec *ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if s.firstStart == 0 || rec.StartTime < s.firstStart {
		s.firstStart = rec.StartTime
	}
	if rec.EndTime > s.lastEnd {
		s.lastEnd = rec.EndTime
	}
	if !rec.Succeeded() {
		s.errorsByKind[rec.ErrorType]++
		return nil
	}
	s.succeeded++
	s.promptTokens += rec.PromptTokens
	s.outputTokens += rec.OutputTokens
	s.latencies = append(s.latencies, rec.Latency)
	s.throughputs = append(s.throughputs, rec.Throughput)
	if rec.TTFT != nil {
		s.ttfts = append(s.ttfts, *rec.TTFT)
	}
	if rec.TPOT != nil {
		s.tpots = append(s.tpots, *rec.TPOT)
	}
	return nil
}

// Close is a no-op; it lets Summary sit in a sink fan-out.
func (s *Summary) Close() error {
	return nil
}

// Distribution summarizes one metric in seconds.
type Distribution struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// Report is a point-in-time snapshot of a Summary.
type Report struct {
	TotalRequests     int            `json:"total_requests"`
	SuccessCount      int            `json:"success_count"`
	ErrorCount        int            `json:"error_count"`
	ErrorsByKind      map[string]int `json:"errors_by_kind"`
	TotalPromptTokens int64          `json:"total_prompt_tokens"`
	TotalOutputTokens int64          `json:"total_output_tokens"`
	DurationSeconds   float64        `json:"duration_s"`
	RequestsPerSec    float64        `json:"requests_per_sec"`
	TokensPerSec      float64        `json:"tokens_per_sec"`
	Latency           Distribution   `json:"latency"`
	TTFT              Distribution   `json:"ttft"`
	TPOT              Distribution   `json:"tpot"`
	Throughput        Distribution   `json:"throughput"`
}

// Report computes the current statistics.
func (s *Summary) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{
		TotalRequests:     s.total,
		SuccessCount:      s.succeeded,
		ErrorCount:        s.total - s.succeeded,
		ErrorsByKind:      make(map[string]int, len(s.errorsByKind)),
		TotalPromptTokens: s.promptTokens,
		TotalOutputTokens: s.outputTokens,
		Latency:           Distribute(s.latencies),
		TTFT:              Distribute(s.ttfts),
		TPOT:              Distribute(s.tpots),
		Throughput:        Distribute(s.throughputs),
	}
	for k, v := range s.errorsByKind {
		r.ErrorsByKind[k] = v
	}
	if s.lastEnd > s.firstStart {
		r.DurationSeconds = s.lastEnd - s.firstStart
		r.RequestsPerSec = float64(s.total) / r.DurationSeconds
		r.TokensPerSec = float64(s.outputTokens) / r.DurationSeconds
	}
	return r
}

// Print writes a human-readable report.
func (r Report) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "=== Replay Metrics ===")
	_, _ = fmt.Fprintf(w, "Total Requests       : %d\n", r.TotalRequests)
	_, _ = fmt.Fprintf(w, "Succeeded            : %d\n", r.SuccessCount)
	_, _ = fmt.Fprintf(w, "Failed               : %d\n", r.ErrorCount)
	kinds := make([]string, 0, len(r.ErrorsByKind))
	for k := range r.ErrorsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "  %-19s: %d\n", k, r.ErrorsByKind[k])
	}
	if r.DurationSeconds > 0 {
		_, _ = fmt.Fprintf(w, "Duration             : %.2f s\n", r.DurationSeconds)
		_, _ = fmt.Fprintf(w, "Requests/sec         : %.2f\n", r.RequestsPerSec)
		_, _ = fmt.Fprintf(w, "Output tokens/sec    : %.2f\n", r.TokensPerSec)
	}
	printDistribution(w, "Latency (s)", r.Latency)
	printDistribution(w, "TTFT (s)", r.TTFT)
	printDistribution(w, "TPOT (s)", r.TPOT)
	printDistribution(w, "Throughput (tok/s)", r.Throughput)
}

func printDistribution(w io.Writer, name string, d Distribution) {
	if d.Count == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "%-21s: mean=%.4f p50=%.4f p90=%.4f p99=%.4f max=%.4f\n",
		name, d.Mean, d.P50, d.P90, d.P99, d.Max)
}

// Distribute computes the Distribution of data. data is not modified.
func Distribute(data []float64) Distribution {
	if len(data) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return Distribution{
		Count: len(sorted),
		Mean:  CalculateMean(sorted),
		P50:   CalculatePercentile(sorted, 50),
		P90:   CalculatePercentile(sorted, 90),
		P99:   CalculatePercentile(sorted, 99),
		Max:   sorted[len(sorted)-1],
	}
}

// CalculatePercentile returns the p-th percentile of sorted data using linear
// interpolation between closest ranks. data must be sorted ascending.
func CalculatePercentile(data []float64, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return data[n-1]
	}
	if lowerIdx == upperIdx {
		return data[lowerIdx]
	}
	return data[lowerIdx] + (data[upperIdx]-data[lowerIdx])*(rank-float64(lowerIdx))
}

// CalculateMean returns the arithmetic mean of data, or 0 when empty.
func CalculateMean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}
