package systrace

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the dump-latency histogram buckets in
// nanoseconds, covering 100us to 10s.
var LatencyBuckets = []uint64{
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 6

// Metrics tracks engine-wide operational statistics: how many call/
// return and memory-allocation events were captured versus dropped, and
// how long dump-to-disk operations take.
type Metrics struct {
	CallsCaptured  atomic.Uint64
	CallsDropped   atomic.Uint64
	MemEventsCaptured atomic.Uint64
	MemEventsDropped  atomic.Uint64
	MarkersCaptured   atomic.Uint64
	MarkersDropped    atomic.Uint64

	DumpsWritten atomic.Uint64
	DumpsFailed  atomic.Uint64

	TotalDumpLatencyNs atomic.Uint64
	DumpCount          atomic.Uint64
	DumpLatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics returns a Metrics instance stamped with the current time as
// its start time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCall records a captured or dropped call/return event.
func (m *Metrics) RecordCall(captured bool) {
	if captured {
		m.CallsCaptured.Add(1)
	} else {
		m.CallsDropped.Add(1)
	}
}

// RecordMemEvent records a captured or dropped driver-interposer event.
func (m *Metrics) RecordMemEvent(captured bool) {
	if captured {
		m.MemEventsCaptured.Add(1)
	} else {
		m.MemEventsDropped.Add(1)
	}
}

// RecordMarker records a captured or dropped accelerator-SDK marker.
func (m *Metrics) RecordMarker(captured bool) {
	if captured {
		m.MarkersCaptured.Add(1)
	} else {
		m.MarkersDropped.Add(1)
	}
}

// RecordDump records the outcome and latency of one dump-controller
// write cycle.
func (m *Metrics) RecordDump(latencyNs uint64, success bool) {
	if success {
		m.DumpsWritten.Add(1)
	} else {
		m.DumpsFailed.Add(1)
	}
	m.TotalDumpLatencyNs.Add(latencyNs)
	m.DumpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.DumpLatencyBuckets[i].Add(1)
		}
	}
}

// Stop stamps the metrics instance with a stop time.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic view of Metrics.
type MetricsSnapshot struct {
	CallsCaptured     uint64
	CallsDropped      uint64
	MemEventsCaptured uint64
	MemEventsDropped  uint64
	MarkersCaptured   uint64
	MarkersDropped    uint64

	DumpsWritten uint64
	DumpsFailed  uint64
	AvgDumpLatencyNs uint64
	UptimeNs         uint64

	DumpLatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot returns a consistent-enough point-in-time copy of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		CallsCaptured:     m.CallsCaptured.Load(),
		CallsDropped:      m.CallsDropped.Load(),
		MemEventsCaptured: m.MemEventsCaptured.Load(),
		MemEventsDropped:  m.MemEventsDropped.Load(),
		MarkersCaptured:   m.MarkersCaptured.Load(),
		MarkersDropped:    m.MarkersDropped.Load(),
		DumpsWritten:      m.DumpsWritten.Load(),
		DumpsFailed:       m.DumpsFailed.Load(),
	}

	if dc := m.DumpCount.Load(); dc > 0 {
		snap.AvgDumpLatencyNs = m.TotalDumpLatencyNs.Load() / dc
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.DumpLatencyHistogram[i] = m.DumpLatencyBuckets[i].Load()
	}
	return snap
}

// Reset zeroes every counter and restamps the start time. Useful for
// tests that want a clean Metrics without reallocating atomics.
func (m *Metrics) Reset() {
	m.CallsCaptured.Store(0)
	m.CallsDropped.Store(0)
	m.MemEventsCaptured.Store(0)
	m.MemEventsDropped.Store(0)
	m.MarkersCaptured.Store(0)
	m.MarkersDropped.Store(0)
	m.DumpsWritten.Store(0)
	m.DumpsFailed.Store(0)
	m.TotalDumpLatencyNs.Store(0)
	m.DumpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.DumpLatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, one method per observed
// operation.
type Observer interface {
	ObserveCall(captured bool)
	ObserveMemEvent(captured bool)
	ObserveMarker(captured bool)
	ObserveDump(latencyNs uint64, success bool)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCall(bool)             {}
func (NoOpObserver) ObserveMemEvent(bool)          {}
func (NoOpObserver) ObserveMarker(bool)            {}
func (NoOpObserver) ObserveDump(uint64, bool)       {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer backed by m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCall(captured bool)      { o.metrics.RecordCall(captured) }
func (o *MetricsObserver) ObserveMemEvent(captured bool)  { o.metrics.RecordMemEvent(captured) }
func (o *MetricsObserver) ObserveMarker(captured bool)    { o.metrics.RecordMarker(captured) }
func (o *MetricsObserver) ObserveDump(latencyNs uint64, success bool) {
	o.metrics.RecordDump(latencyNs, success)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
