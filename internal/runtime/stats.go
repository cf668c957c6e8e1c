package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
	"github.com/drblury/runtimeclient/internal/runtime/processing"
)

const (
	latencySamples   = 256
	throughputWindow = time.Minute
)

// ProcessorInfo is the introspection view of one registered processor.
type ProcessorInfo struct {
	Name   string                    `json:"name"`
	Kind   string                    `json:"kind"`
	ID     uuid.UUID                 `json:"id"`
	Status processing.StatusSnapshot `json:"status"`
	Stats  *ProcessorStats           `json:"stats"`
}

// ProcessorStats aggregates the requests a processor handled. Reading the
// exported fields directly races with request handling; marshal it instead.
type ProcessorStats struct {
	mu sync.Mutex

	RequestsHandled     uint64    `json:"requests_handled"`
	RequestsFailed      uint64    `json:"requests_failed"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastHandledAt       time.Time `json:"last_handled_at"`

	Latency     LatencyMetrics     `json:"latency"`
	Throughput  ThroughputMetrics  `json:"throughput"`
	Errors      ErrorBreakdown     `json:"errors"`
	Resource    ResourceUsage      `json:"resource"`
	Concurrency ConcurrencyMetrics `json:"concurrency"`

	latency   *latencyRing
	rate      *rateCounter
	resources *resourceTracker
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	RequestsInWindow uint64  `json:"requests_in_window"`
	TotalRequests    uint64  `json:"total_requests"`
}

type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// ConcurrencyMetrics counts requests currently inside user code.
type ConcurrencyMetrics struct {
	InFlight    uint64 `json:"in_flight"`
	MaxInFlight uint64 `json:"max_in_flight"`
}

func newProcessorStats(resources *resourceTracker) *ProcessorStats {
	return &ProcessorStats{
		latency:   newLatencyRing(latencySamples),
		rate:      newRateCounter(throughputWindow),
		resources: resources,
	}
}

func (s *ProcessorStats) onRequestStart() {
	s.mu.Lock()
	s.Concurrency.InFlight++
	s.Concurrency.MaxInFlight = max(s.Concurrency.MaxInFlight, s.Concurrency.InFlight)
	s.mu.Unlock()
}

func (s *ProcessorStats) onRequestFinish(took time.Duration, err error, classify ErrorClassifier) {
	if classify == nil {
		classify = defaultErrorClassifier
	}
	category := classify(err)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Concurrency.InFlight > 0 {
		s.Concurrency.InFlight--
	}
	s.RequestsHandled++
	if err != nil {
		s.RequestsFailed++
	}
	s.TotalProcessingTime += int64(took)
	s.LastHandledAt = now.UTC()
	s.Errors.Record(category, err)

	s.latency.add(took)
	s.Latency = s.latency.metrics()
	s.Latency.AverageNs = s.TotalProcessingTime / int64(s.RequestsHandled)

	s.Throughput = s.rate.observe(now)
	s.Throughput.TotalRequests = s.RequestsHandled

	if s.resources != nil {
		s.Resource = s.resources.Snapshot()
	}
}

func (s *ProcessorStats) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type plain ProcessorStats
	return jsoncodec.Marshal((*plain)(s))
}
