package discord

import (
	"math"
	"slices"
	"sync"
	"time"
)

// SayStats collects /say latency samples and message counters for the
// /gagstats embed. Latencies are kept in a bounded ring buffer and the
// percentiles are computed on demand.
//
// Safe for concurrent use.
type SayStats struct {
	mu sync.Mutex

	latency  latencyBuffer
	messages int64
	silenced int64
	since    time.Time
}

// NewSayStats creates a SayStats keeping the last windowSize latency
// samples. A non-positive windowSize keeps 100.
func NewSayStats(windowSize int) *SayStats {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &SayStats{
		latency: newLatencyBuffer(windowSize),
		since:   time.Now(),
	}
}

// Record adds one garbled message. silenced marks a message that produced
// no audible output.
func (st *SayStats) Record(d time.Duration, silenced bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.latency.add(d)
	st.messages++
	if silenced {
		st.silenced++
	}
}

// LatencyPercentiles holds p50 and p95 garble latency.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// StatsSnapshot is a point-in-time view of [SayStats].
type StatsSnapshot struct {
	Latency  LatencyPercentiles
	Messages int64
	Silenced int64
	Since    time.Time
}

// Snapshot returns the current statistics.
func (st *SayStats) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return StatsSnapshot{
		Latency:  st.latency.percentiles(),
		Messages: st.messages,
		Silenced: st.silenced,
		Since:    st.since,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{data: make([]time.Duration, size)}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos = (lb.pos + 1) % len(lb.data)
	if lb.pos == 0 {
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = len(lb.data)
	}
	if n == 0 {
		return LatencyPercentiles{}
	}
	sorted := slices.Clone(lb.data[:n])
	slices.Sort(sorted)
	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the nearest-rank value at p (0.0-1.0) of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
