package dasipc

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the request-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for one Host's IPC traffic.
type Metrics struct {
	RequestsSent     atomic.Uint64
	RequestsReceived atomic.Uint64
	ResponsesMatched atomic.Uint64
	EventsSent       atomic.Uint64
	EventsReceived   atomic.Uint64

	Timeouts           atomic.Uint64
	ReentrancyRejected atomic.Uint64

	HeartbeatsSent   atomic.Uint64
	HeartbeatsMissed atomic.Uint64

	SharedMemAllocations   atomic.Uint64
	SharedMemDeallocations atomic.Uint64
	SharedMemFailures      atomic.Uint64

	SchedulerTicks      atomic.Uint64
	TaskRunsSucceeded   atomic.Uint64
	TaskRunsFailed      atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRequestSent records a request dispatched via SendRequest,
// including its round-trip latency once the response (or timeout)
// resolves.
func (m *Metrics) RecordRequestSent(latencyNs uint64, timedOut bool) {
	m.RequestsSent.Add(1)
	if timedOut {
		m.Timeouts.Add(1)
		return
	}
	m.ResponsesMatched.Add(1)
	m.recordLatency(latencyNs)
}

// RecordRequestReceived records an inbound REQUEST frame dispatched to a
// local stub.
func (m *Metrics) RecordRequestReceived() { m.RequestsReceived.Add(1) }

// RecordEventSent records an outbound EVENT frame.
func (m *Metrics) RecordEventSent() { m.EventsSent.Add(1) }

// RecordEventReceived records an inbound EVENT frame.
func (m *Metrics) RecordEventReceived() { m.EventsReceived.Add(1) }

// RecordReentrancyRejected records a SendRequest rejected for exceeding
// the re-entrancy cap.
func (m *Metrics) RecordReentrancyRejected() { m.ReentrancyRejected.Add(1) }

// RecordHeartbeatSent records a heartbeat sent to a live peer.
func (m *Metrics) RecordHeartbeatSent() { m.HeartbeatsSent.Add(1) }

// RecordHeartbeatMissed records a peer declared dead after exceeding the
// heartbeat timeout.
func (m *Metrics) RecordHeartbeatMissed() { m.HeartbeatsMissed.Add(1) }

// RecordSharedMemAllocation records a shmpool block allocation outcome.
func (m *Metrics) RecordSharedMemAllocation(success bool) {
	if success {
		m.SharedMemAllocations.Add(1)
		return
	}
	m.SharedMemFailures.Add(1)
}

// RecordSharedMemDeallocation records a shmpool block release.
func (m *Metrics) RecordSharedMemDeallocation() { m.SharedMemDeallocations.Add(1) }

// RecordSchedulerTick records one executor loop iteration that ran a
// due task, and its outcome.
func (m *Metrics) RecordSchedulerTick(success bool) {
	m.SchedulerTicks.Add(1)
	if success {
		m.TaskRunsSucceeded.Add(1)
	} else {
		m.TaskRunsFailed.Add(1)
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the host as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time read of Metrics.
type MetricsSnapshot struct {
	RequestsSent     uint64
	RequestsReceived uint64
	ResponsesMatched uint64
	EventsSent       uint64
	EventsReceived   uint64

	Timeouts           uint64
	ReentrancyRejected uint64

	HeartbeatsSent   uint64
	HeartbeatsMissed uint64

	SharedMemAllocations   uint64
	SharedMemDeallocations uint64
	SharedMemFailures      uint64

	SchedulerTicks    uint64
	TaskRunsSucceeded uint64
	TaskRunsFailed    uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	RequestsPerSecond float64
	ErrorRate         float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		RequestsSent:           m.RequestsSent.Load(),
		RequestsReceived:       m.RequestsReceived.Load(),
		ResponsesMatched:       m.ResponsesMatched.Load(),
		EventsSent:             m.EventsSent.Load(),
		EventsReceived:         m.EventsReceived.Load(),
		Timeouts:               m.Timeouts.Load(),
		ReentrancyRejected:     m.ReentrancyRejected.Load(),
		HeartbeatsSent:         m.HeartbeatsSent.Load(),
		HeartbeatsMissed:       m.HeartbeatsMissed.Load(),
		SharedMemAllocations:   m.SharedMemAllocations.Load(),
		SharedMemDeallocations: m.SharedMemDeallocations.Load(),
		SharedMemFailures:      m.SharedMemFailures.Load(),
		SchedulerTicks:         m.SchedulerTicks.Load(),
		TaskRunsSucceeded:      m.TaskRunsSucceeded.Load(),
		TaskRunsFailed:         m.TaskRunsFailed.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		snap.RequestsPerSecond = float64(snap.RequestsSent) / (float64(snap.UptimeNs) / 1e9)
	}

	if snap.RequestsSent > 0 {
		snap.ErrorRate = float64(snap.Timeouts) / float64(snap.RequestsSent) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful for testing.
func (m *Metrics) Reset() {
	*m = Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
}

// Observer is the pluggable metrics-collection hook a Host records its
// IPC operations through instead of reaching for a process-global.
type Observer interface {
	ObserveRequestSent(latencyNs uint64, timedOut bool)
	ObserveRequestReceived()
	ObserveEventSent()
	ObserveEventReceived()
	ObserveReentrancyRejected()
	ObserveHeartbeatSent()
	ObserveHeartbeatMissed()
	ObserveSharedMemAllocation(success bool)
	ObserveSharedMemDeallocation()
	ObserveSchedulerTick(success bool)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRequestSent(uint64, bool)      {}
func (NoOpObserver) ObserveRequestReceived()              {}
func (NoOpObserver) ObserveEventSent()                    {}
func (NoOpObserver) ObserveEventReceived()                {}
func (NoOpObserver) ObserveReentrancyRejected()           {}
func (NoOpObserver) ObserveHeartbeatSent()                {}
func (NoOpObserver) ObserveHeartbeatMissed()              {}
func (NoOpObserver) ObserveSharedMemAllocation(bool)      {}
func (NoOpObserver) ObserveSharedMemDeallocation()        {}
func (NoOpObserver) ObserveSchedulerTick(bool)            {}

// MetricsObserver implements Observer against a built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRequestSent(latencyNs uint64, timedOut bool) {
	o.metrics.RecordRequestSent(latencyNs, timedOut)
}
func (o *MetricsObserver) ObserveRequestReceived()    { o.metrics.RecordRequestReceived() }
func (o *MetricsObserver) ObserveEventSent()          { o.metrics.RecordEventSent() }
func (o *MetricsObserver) ObserveEventReceived()      { o.metrics.RecordEventReceived() }
func (o *MetricsObserver) ObserveReentrancyRejected() { o.metrics.RecordReentrancyRejected() }
func (o *MetricsObserver) ObserveHeartbeatSent()      { o.metrics.RecordHeartbeatSent() }
func (o *MetricsObserver) ObserveHeartbeatMissed()    { o.metrics.RecordHeartbeatMissed() }
func (o *MetricsObserver) ObserveSharedMemAllocation(success bool) {
	o.metrics.RecordSharedMemAllocation(success)
}
func (o *MetricsObserver) ObserveSharedMemDeallocation() { o.metrics.RecordSharedMemDeallocation() }
func (o *MetricsObserver) ObserveSchedulerTick(success bool) {
	o.metrics.RecordSchedulerTick(success)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
