package runtime

import (
	"slices"
	"time"
)

// latencyRing keeps the most recent request durations.
type latencyRing struct {
	samples []time.Duration
	next    int
	full    bool
	last    time.Duration
}

func newLatencyRing(size int) *latencyRing {
	return &latencyRing{samples: make([]time.Duration, max(size, 1))}
}

func (r *latencyRing) add(d time.Duration) {
	r.samples[r.next] = d
	r.last = d
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

func (r *latencyRing) metrics() LatencyMetrics {
	if r == nil {
		return LatencyMetrics{}
	}
	held := r.samples[:r.next]
	if r.full {
		held = r.samples
	}
	m := LatencyMetrics{LastNs: int64(r.last), SampleSize: len(held)}
	if len(held) == 0 {
		return m
	}
	sorted := slices.Clone(held)
	slices.Sort(sorted)
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	m.AverageNs = int64(sum) / int64(len(sorted))
	m.P50Ns = int64(nearestRank(sorted, 50))
	m.P95Ns = int64(nearestRank(sorted, 95))
	m.P99Ns = int64(nearestRank(sorted, 99))
	return m
}

// nearestRank returns the smallest sample that at least pct percent of the
// sorted samples do not exceed.
func nearestRank(sorted []time.Duration, pct int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (pct*len(sorted) + 99) / 100
	return sorted[min(max(rank-1, 0), len(sorted)-1)]
}

// rateCounter counts requests in one-second buckets over a sliding window.
type rateCounter struct {
	buckets []rateBucket
}

type rateBucket struct {
	second int64
	count  uint64
}

func newRateCounter(window time.Duration) *rateCounter {
	return &rateCounter{buckets: make([]rateBucket, max(int(window/time.Second), 1))}
}

// observe records one request at now and reports the rate over the window.
func (c *rateCounter) observe(now time.Time) ThroughputMetrics {
	if c == nil {
		return ThroughputMetrics{}
	}
	sec := now.Unix()
	width := int64(len(c.buckets))
	b := &c.buckets[sec%width]
	if b.second != sec {
		*b = rateBucket{second: sec}
	}
	b.count++

	var total uint64
	oldest := sec
	for _, bucket := range c.buckets {
		if bucket.count == 0 || bucket.second <= sec-width {
			continue
		}
		total += bucket.count
		oldest = min(oldest, bucket.second)
	}
	span := max(now.Sub(time.Unix(oldest, 0)), time.Second)
	return ThroughputMetrics{
		CurrentRPS:       float64(total) / span.Seconds(),
		WindowSeconds:    span.Seconds(),
		RequestsInWindow: total,
	}
}
