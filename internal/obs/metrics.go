package obs

import (
	"sync/atomic"
	"time"
)

// Counter identifies one pipeline counter.
type Counter uint8

const (
	CounterWrites Counter = iota
	CounterCoalesced
	CounterTicks
	CounterCandles
	CounterCarriedCandles
	CounterPositions
	CounterDecisions
	CounterIntents
	CounterSubmitted
	CounterRejected
	CounterRiskDenied
	CounterQueueDrops
	CounterStaleTimeouts
	CounterReconnects
	counterEnd
)

func (c Counter) String() string {
	switch c {
	case CounterWrites:
		return "writes"
	case CounterCoalesced:
		return "coalesced"
	case CounterTicks:
		return "ticks"
	case CounterCandles:
		return "candles"
	case CounterCarriedCandles:
		return "carried_candles"
	case CounterPositions:
		return "positions"
	case CounterDecisions:
		return "decisions"
	case CounterIntents:
		return "intents"
	case CounterSubmitted:
		return "submitted"
	case CounterRejected:
		return "rejected"
	case CounterRiskDenied:
		return "risk_denied"
	case CounterQueueDrops:
		return "queue_drops"
	case CounterStaleTimeouts:
		return "stale_timeouts"
	case CounterReconnects:
		return "reconnects"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight pipeline counters and latency stats.
type Metrics struct {
	counts [counterEnd]uint64

	decisionLatency LatencyStats
	submitLatency   LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counts          map[Counter]uint64
	DecisionLatency LatencySnapshot
	SubmitLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments a counter by one.
func (m *Metrics) Inc(c Counter) {
	m.Add(c, 1)
}

// Add increments a counter by delta.
func (m *Metrics) Add(c Counter, delta uint64) {
	if m == nil {
		return
	}
	idx := int(c)
	if idx >= 0 && idx < len(m.counts) {
		atomic.AddUint64(&m.counts[idx], delta)
	}
}

// Count returns one counter's current value.
func (m *Metrics) Count(c Counter) uint64 {
	if m == nil {
		return 0
	}
	idx := int(c)
	if idx < 0 || idx >= len(m.counts) {
		return 0
	}
	return atomic.LoadUint64(&m.counts[idx])
}

// ObserveDecision measures one strategy decision cycle.
func (m *Metrics) ObserveDecision(d time.Duration) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(d)
}

// ObserveSubmit measures one order submission round trip.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[Counter]uint64)
	for i := range m.counts {
		if v := atomic.LoadUint64(&m.counts[i]); v > 0 {
			counts[Counter(i)] = v
		}
	}
	return Snapshot{
		Counts:          counts,
		DecisionLatency: m.decisionLatency.Snapshot(),
		SubmitLatency:   m.submitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
