package dasipc

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRecordRequestSent(t *testing.T) {
	m := NewMetrics()
	m.RecordRequestSent(500_000, false)
	m.RecordRequestSent(0, true)

	snap := m.Snapshot()
	if snap.RequestsSent != 2 {
		t.Errorf("RequestsSent = %d, want 2", snap.RequestsSent)
	}
	if snap.ResponsesMatched != 1 {
		t.Errorf("ResponsesMatched = %d, want 1", snap.ResponsesMatched)
	}
	if snap.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", snap.Timeouts)
	}
	if snap.AvgLatencyNs != 500_000 {
		t.Errorf("AvgLatencyNs = %d, want 500000", snap.AvgLatencyNs)
	}
}

func TestSnapshotErrorRate(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 3; i++ {
		m.RecordRequestSent(1_000, false)
	}
	m.RecordRequestSent(0, true)

	snap := m.Snapshot()
	if snap.ErrorRate <= 0 {
		t.Errorf("ErrorRate = %f, want > 0", snap.ErrorRate)
	}
}

func TestLatencyPercentiles(t *testing.T) {
	m := NewMetrics()
	latencies := []uint64{1_000, 5_000, 50_000, 500_000, 5_000_000}
	for _, l := range latencies {
		m.RecordRequestSent(l, false)
	}

	snap := m.Snapshot()
	if snap.LatencyP50Ns == 0 {
		t.Error("expected nonzero P50")
	}
	if snap.LatencyP99Ns < snap.LatencyP50Ns {
		t.Error("expected P99 >= P50")
	}
}

func TestRecordSharedMemAllocation(t *testing.T) {
	m := NewMetrics()
	m.RecordSharedMemAllocation(true)
	m.RecordSharedMemAllocation(false)

	snap := m.Snapshot()
	if snap.SharedMemAllocations != 1 {
		t.Errorf("SharedMemAllocations = %d, want 1", snap.SharedMemAllocations)
	}
	if snap.SharedMemFailures != 1 {
		t.Errorf("SharedMemFailures = %d, want 1", snap.SharedMemFailures)
	}
}

func TestRecordSchedulerTick(t *testing.T) {
	m := NewMetrics()
	m.RecordSchedulerTick(true)
	m.RecordSchedulerTick(false)
	m.RecordSchedulerTick(true)

	snap := m.Snapshot()
	if snap.SchedulerTicks != 3 {
		t.Errorf("SchedulerTicks = %d, want 3", snap.SchedulerTicks)
	}
	if snap.TaskRunsSucceeded != 2 {
		t.Errorf("TaskRunsSucceeded = %d, want 2", snap.TaskRunsSucceeded)
	}
	if snap.TaskRunsFailed != 1 {
		t.Errorf("TaskRunsFailed = %d, want 1", snap.TaskRunsFailed)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordRequestSent(1_000, false)
	m.Reset()

	snap := m.Snapshot()
	if snap.RequestsSent != 0 {
		t.Errorf("RequestsSent after Reset = %d, want 0", snap.RequestsSent)
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveRequestSent(1_000, false)
	obs.ObserveRequestReceived()
	obs.ObserveEventSent()
	obs.ObserveEventReceived()
	obs.ObserveReentrancyRejected()
	obs.ObserveHeartbeatSent()
	obs.ObserveHeartbeatMissed()
	obs.ObserveSharedMemAllocation(true)
	obs.ObserveSharedMemDeallocation()
	obs.ObserveSchedulerTick(true)

	snap := m.Snapshot()
	if snap.RequestsSent != 1 || snap.RequestsReceived != 1 || snap.EventsSent != 1 ||
		snap.EventsReceived != 1 || snap.ReentrancyRejected != 1 || snap.HeartbeatsSent != 1 ||
		snap.HeartbeatsMissed != 1 || snap.SharedMemAllocations != 1 ||
		snap.SharedMemDeallocations != 1 || snap.SchedulerTicks != 1 {
		t.Errorf("unexpected snapshot after observer calls: %+v", snap)
	}
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var obs Observer = NoOpObserver{}
	obs.ObserveRequestSent(1, false)
	obs.ObserveRequestReceived()
	obs.ObserveEventSent()
	obs.ObserveEventReceived()
	obs.ObserveReentrancyRejected()
	obs.ObserveHeartbeatSent()
	obs.ObserveHeartbeatMissed()
	obs.ObserveSharedMemAllocation(true)
	obs.ObserveSharedMemDeallocation()
	obs.ObserveSchedulerTick(false)
}

func TestPrometheusObserverRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)

	obs.ObserveRequestSent(1_000_000, false)
	obs.ObserveRequestReceived()
	obs.ObserveSchedulerTick(false)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one registered metric family")
	}
}
