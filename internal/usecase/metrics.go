package usecase

import (
	"sync"
	"time"
)

// MetricsSummary represents aggregated prediction insights.
type MetricsSummary struct {
	TotalRequests             int64   `json:"total_requests"`
	SuccessfulRequests        int64   `json:"successful_requests"`
	FailedRequests            int64   `json:"failed_requests"`
	SuccessRate               float64 `json:"success_rate"`
	AverageInferenceLatencyMs float64 `json:"average_inference_latency_ms"`
	InFlight                  int64   `json:"in_flight"`
}

// Metrics accumulates request counters in memory.
type Metrics struct {
	mu               sync.Mutex
	total            int64
	succeeded        int64
	inFlight         int64
	inferences       int64
	inferenceLatency time.Duration
}

func (m *Metrics) begin() {
	m.mu.Lock()
	m.inFlight++
	m.mu.Unlock()
}

func (m *Metrics) finish(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	m.total++
	if success {
		m.succeeded++
	}
}

func (m *Metrics) observeInference(d time.Duration) {
	m.mu.Lock()
	m.inferences++
	m.inferenceLatency += d
	m.mu.Unlock()
}

// Summary returns a consistent snapshot of the counters.
func (m *Metrics) Summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := MetricsSummary{
		TotalRequests:      m.total,
		SuccessfulRequests: m.succeeded,
		FailedRequests:     m.total - m.succeeded,
		InFlight:           m.inFlight,
	}
	if m.total > 0 {
		summary.SuccessRate = float64(m.succeeded) / float64(m.total)
	}
	if m.inferences > 0 {
		summary.AverageInferenceLatencyMs = float64(m.inferenceLatency.Microseconds()) / float64(m.inferences) / 1000
	}
	return summary
}
