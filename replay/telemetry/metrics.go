// Package telemetry exposes live replay progress as Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inference-sim/inference-replay/replay"
)

const namespace = "replay"

// Metrics is a replay.Sink that updates Prometheus collectors for every
// record. Each Metrics owns its registry.
type Metrics struct {
	Requests     *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
	TTFT         prometheus.Histogram
	TPOT         prometheus.Histogram
	PromptTokens prometheus.Counter
	OutputTokens prometheus.Counter
	PodRequests  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers the replay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Replayed requests by outcome.",
			},
			[]string{"status", "error_type"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "End-to-end request latency in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"status"},
		),
		TTFT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_token_seconds",
			Help:      "Time to first streamed token in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		TPOT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_per_output_token_seconds",
			Help:      "Mean time per output token after the first, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		PromptTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_tokens_total",
			Help:      "Prompt tokens reported by the server.",
		}),
		OutputTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_tokens_total",
			Help:      "Output tokens reported by the server.",
		}),
		PodRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pod_requests_total",
				Help:      "Successful requests by the pod the gateway routed them to.",
			},
			[]string{"target_pod"},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.Requests, m.Latency, m.TTFT, m.TPOT, m.PromptTokens, m.OutputTokens, m.PodRequests)
	return m
}

// Append records rec.
func (m *Metrics) Append(rec *replay.ResultRecord) error {
	m.Requests.WithLabelValues(string(rec.Status), rec.ErrorType).Inc()
	m.Latency.WithLabelValues(string(rec.Status)).Observe(rec.Latency)
	if !rec.Succeeded() {
		return nil
	}
	m.PromptTokens.Add(float64(rec.PromptTokens))
	m.OutputTokens.Add(float64(rec.OutputTokens))
	if rec.TTFT != nil {
		m.TTFT.Observe(*rec.TTFT)
	}
	if rec.TPOT != nil {
		m.TPOT.Observe(*rec.TPOT)
	}
	pod := rec.TargetPod
	if pod == "" {
		pod = "unknown"
	}
	m.PodRequests.WithLabelValues(pod).Inc()
	return nil
}

// Close is a no-op; collectors stay readable until the process exits.
func (m *Metrics) Close() error {
	return nil
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
