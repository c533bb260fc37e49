package dasipc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver implements Observer by registering counters and a
// latency histogram against a prometheus.Registerer, for hosts that want
// their IPC traffic scraped alongside the rest of their metrics instead
// of (or in addition to) polling Metrics.Snapshot.
type PrometheusObserver struct {
	requestsSent       prometheus.Counter
	requestsReceived   prometheus.Counter
	eventsSent         prometheus.Counter
	eventsReceived     prometheus.Counter
	timeouts           prometheus.Counter
	reentrancyRejected prometheus.Counter
	heartbeatsSent     prometheus.Counter
	heartbeatsMissed   prometheus.Counter
	shmAllocations     prometheus.Counter
	shmFailures        prometheus.Counter
	shmDeallocations   prometheus.Counter
	schedulerTicks     prometheus.Counter
	taskFailures       prometheus.Counter
	requestLatency     prometheus.Histogram
}

// NewPrometheusObserver registers and returns an Observer backed by reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_requests_sent_total",
			Help: "Requests issued via SendRequest.",
		}),
		requestsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_requests_received_total",
			Help: "Inbound REQUEST frames dispatched to a local stub.",
		}),
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_events_sent_total",
			Help: "Outbound EVENT frames.",
		}),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_events_received_total",
			Help: "Inbound EVENT frames.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_request_timeouts_total",
			Help: "SendRequest calls that timed out waiting for a response.",
		}),
		reentrancyRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_reentrancy_rejected_total",
			Help: "SendRequest calls rejected for exceeding the re-entrancy cap.",
		}),
		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_heartbeats_sent_total",
			Help: "Heartbeats sent to live peers.",
		}),
		heartbeatsMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_heartbeats_missed_total",
			Help: "Peers declared dead after exceeding the heartbeat timeout.",
		}),
		shmAllocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_shm_allocations_total",
			Help: "Successful shared-memory block allocations.",
		}),
		shmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_shm_allocation_failures_total",
			Help: "Failed shared-memory block allocations.",
		}),
		shmDeallocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_shm_deallocations_total",
			Help: "Shared-memory block releases.",
		}),
		schedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_scheduler_ticks_total",
			Help: "Executor loop iterations that ran a due task.",
		}),
		taskFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dasipc_task_failures_total",
			Help: "Scheduled task runs that returned an error.",
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dasipc_request_latency_seconds",
			Help:    "SendRequest round-trip latency.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
		}),
	}

	reg.MustRegister(
		o.requestsSent, o.requestsReceived, o.eventsSent, o.eventsReceived,
		o.timeouts, o.reentrancyRejected, o.heartbeatsSent, o.heartbeatsMissed,
		o.shmAllocations, o.shmFailures, o.shmDeallocations,
		o.schedulerTicks, o.taskFailures, o.requestLatency,
	)
	return o
}

func (o *PrometheusObserver) ObserveRequestSent(latencyNs uint64, timedOut bool) {
	o.requestsSent.Inc()
	if timedOut {
		o.timeouts.Inc()
		return
	}
	o.requestLatency.Observe(float64(latencyNs) / 1e9)
}
func (o *PrometheusObserver) ObserveRequestReceived()    { o.requestsReceived.Inc() }
func (o *PrometheusObserver) ObserveEventSent()          { o.eventsSent.Inc() }
func (o *PrometheusObserver) ObserveEventReceived()      { o.eventsReceived.Inc() }
func (o *PrometheusObserver) ObserveReentrancyRejected() { o.reentrancyRejected.Inc() }
func (o *PrometheusObserver) ObserveHeartbeatSent()      { o.heartbeatsSent.Inc() }
func (o *PrometheusObserver) ObserveHeartbeatMissed()    { o.heartbeatsMissed.Inc() }
func (o *PrometheusObserver) ObserveSharedMemAllocation(success bool) {
	if success {
		o.shmAllocations.Inc()
	} else {
		o.shmFailures.Inc()
	}
}
func (o *PrometheusObserver) ObserveSharedMemDeallocation() { o.shmDeallocations.Inc() }
func (o *PrometheusObserver) ObserveSchedulerTick(success bool) {
	o.schedulerTicks.Inc()
	if !success {
		o.taskFailures.Inc()
	}
}

var _ Observer = (*PrometheusObserver)(nil)
