package dasipc

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/behrlich/das-ipc-host/internal/connmgr"
	"github.com/behrlich/das-ipc-host/internal/constants"
	"github.com/behrlich/das-ipc-host/internal/logging"
	"github.com/behrlich/das-ipc-host/internal/objectmgr"
	"github.com/behrlich/das-ipc-host/internal/runloop"
	"github.com/behrlich/das-ipc-host/internal/scheduler"
	"github.com/behrlich/das-ipc-host/internal/session"
	"github.com/behrlich/das-ipc-host/internal/shmpool"
	"github.com/behrlich/das-ipc-host/internal/transport"
	"github.com/behrlich/das-ipc-host/internal/wire"
)

// HostConfig is the on-disk configuration for a Host, loadable from YAML
// via LoadHostConfig or built from DefaultHostConfig and overridden with
// Option values.
type HostConfig struct {
	HostQueueName        string        `yaml:"host_queue_name"`
	PluginQueueName      string        `yaml:"plugin_queue_name"`
	SharedMemName        string        `yaml:"shared_mem_name"`
	MaxMessageSize       uint32        `yaml:"max_message_size"`
	MaxMessages          uint32        `yaml:"max_messages"`
	InitialSharedMemSize int64         `yaml:"initial_shared_mem_size"`
	MaxReentrantDepth    int           `yaml:"max_reentrant_depth"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	CreateQueues         bool          `yaml:"create_queues"`
}

// DefaultHostConfig returns a HostConfig for the process with pid, with
// every field at its protocol default (see internal/constants).
func DefaultHostConfig(pid int) *HostConfig {
	hostQueue, pluginQueue := constants.QueueNames(pid)
	return &HostConfig{
		HostQueueName:        hostQueue,
		PluginQueueName:      pluginQueue,
		SharedMemName:        constants.SharedMemName(pid),
		MaxMessageSize:       constants.DefaultMaxMessageSize,
		MaxMessages:          constants.DefaultMaxMessages,
		InitialSharedMemSize: constants.DefaultInitialSharedMemSize,
		MaxReentrantDepth:    constants.MaxReentrancyDepth,
		HeartbeatInterval:    constants.HeartbeatInterval,
		HeartbeatTimeout:     constants.HeartbeatTimeout,
		CreateQueues:         true,
	}
}

// LoadHostConfig reads a YAML-encoded HostConfig from path. Fields the
// file omits keep DefaultHostConfig(os.Getpid())'s value.
func LoadHostConfig(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapError("LoadHostConfig", ErrCodeInvalidState, err)
	}
	cfg := DefaultHostConfig(os.Getpid())
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, WrapError("LoadHostConfig", ErrCodeInvalidMessageHeader, err)
	}
	return cfg, nil
}

// Option overrides a piece of Host construction that doesn't belong in
// the serializable HostConfig: the observer, logger, and request
// handler a caller wires in at startup.
type Option func(*hostOptions)

type hostOptions struct {
	observer  Observer
	logger    *logging.Logger
	onRequest runloop.RequestHandler
}

// WithObserver routes every IPC operation's metrics through o instead of
// the default in-process MetricsObserver.
func WithObserver(o Observer) Option {
	return func(ho *hostOptions) { ho.observer = o }
}

// WithLogger sets the Host's logger in place of logging.Default().
func WithLogger(l *logging.Logger) Option {
	return func(ho *hostOptions) { ho.logger = l }
}

// WithRequestHandler sets the handler invoked for inbound REQUEST and
// EVENT frames, typically an ipc.Stub's Dispatch wired up per interface.
func WithRequestHandler(h runloop.RequestHandler) Option {
	return func(ho *hostOptions) { ho.onRequest = h }
}

// Host is the process-owned state object wiring the shared-memory pool,
// message-queue transport, session coordinator, object manager, run
// loop, connection manager, and task scheduler together for one host
// process, a single "one struct owns every subsystem" object for the
// whole process bootstrap.
type Host struct {
	cfg *HostConfig

	Pool      *shmpool.Pool
	Transport *transport.Transport
	Sessions  *session.Coordinator
	Objects   *objectmgr.Manager
	RunLoop   *runloop.RunLoop
	Conns     *connmgr.Manager
	Scheduler *scheduler.Scheduler

	Metrics  *Metrics
	Observer Observer
	Logger   *logging.Logger

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewHost constructs a Host bound to cfg, opening the shared-memory pool
// and message-queue transport immediately. Call Start to begin the run
// loop, connection manager, and scheduler goroutines.
func NewHost(cfg *HostConfig, opts ...Option) (*Host, error) {
	ho := &hostOptions{}
	for _, opt := range opts {
		opt(ho)
	}
	if ho.logger == nil {
		ho.logger = logging.Default()
	}

	metrics := NewMetrics()
	if ho.observer == nil {
		ho.observer = NewMetricsObserver(metrics)
	}

	pool := shmpool.NewPool(constants.MaxSharedMemBlockNameLen)

	tp, err := transport.New(transport.Config{
		SendQueueName:   cfg.HostQueueName,
		RecvQueueName:   cfg.PluginQueueName,
		MaxMessageSize:  cfg.MaxMessageSize,
		MaxMessages:     cfg.MaxMessages,
		Create:          cfg.CreateQueues,
		Pool:            pool,
		BlockNamePrefix: cfg.SharedMemName,
	})
	if err != nil {
		pool.Close()
		return nil, WrapError("NewHost", ErrCodeSharedMemoryFailure, err)
	}

	sessions := session.NewCoordinator()
	sessions.SetLocalSessionId(session.ReservedMain)
	objects := objectmgr.NewManager(session.ReservedMain)

	h := &Host{
		cfg:       cfg,
		Pool:      pool,
		Transport: tp,
		Sessions:  sessions,
		Objects:   objects,
		Metrics:   metrics,
		Observer:  ho.observer,
		Logger:    ho.logger,
	}

	h.RunLoop = runloop.New(runloop.Config{
		Transport:         &transportAdapter{tp: tp},
		OnRequest:         h.wrapRequestHandler(ho.onRequest),
		OnHeartbeat:       h.onHeartbeat,
		MaxReentrantDepth: cfg.MaxReentrantDepth,
	})

	h.Conns = connmgr.NewManager(connmgr.Config{
		Interval:      cfg.HeartbeatInterval,
		Timeout:       cfg.HeartbeatTimeout,
		SendHeartbeat: h.sendHeartbeat,
		OnDead:        h.onPeerDead,
	})

	h.Scheduler = scheduler.New()

	return h, nil
}

// Start launches the run loop's idle-receive goroutine, the connection
// manager's heartbeat loop, and the task scheduler.
func (h *Host) Start(ctx context.Context) {
	h.runCtx, h.runCancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = h.RunLoop.Run(h.runCtx)
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Conns.Run()
	}()

	h.Scheduler.Start()
}

// Stop halts every Host goroutine and releases the shared-memory pool
// and transport. Safe to call more than once.
func (h *Host) Stop() error {
	var stopErr error
	h.stopOnce.Do(func() {
		if h.runCancel != nil {
			h.runCancel()
		}
		h.Conns.Stop()
		h.Scheduler.Stop()
		h.RunLoop.Stop()
		h.wg.Wait()

		if err := h.Transport.Close(); err != nil {
			stopErr = WrapError("Stop", ErrCodeConnectionClosed, err)
		}
		h.Pool.Close()
		h.Metrics.Stop()
	})
	return stopErr
}

// SendRequest issues a REQUEST against objectID/methodID on the given
// interface, recording the round-trip latency (or timeout) through the
// Host's Observer.
func (h *Host) SendRequest(ctx context.Context, interfaceID uint32, objectID uint64, methodID uint16, body []byte) ([]byte, error) {
	start := time.Now()
	resp, err := h.RunLoop.SendRequest(ctx, interfaceID, objectID, methodID, body)
	timedOut := err != nil && (errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, runloop.ErrCancelled) || errors.Is(err, runloop.ErrStopped))
	h.Observer.ObserveRequestSent(uint64(time.Since(start).Nanoseconds()), timedOut)
	if timedOut {
		return resp, WrapError("SendRequest", ErrCodeTimeout, err)
	}
	return resp, err
}

// SendEvent issues a fire-and-forget EVENT frame, recording it through
// the Host's Observer.
func (h *Host) SendEvent(interfaceID uint32, objectID uint64, methodID uint16, body []byte) error {
	h.Observer.ObserveEventSent()
	return h.RunLoop.SendEvent(interfaceID, objectID, methodID, body)
}

// wrapRequestHandler adapts a caller's handler (possibly nil) into one
// that records RequestReceived/EventReceived through the Observer
// before delegating.
func (h *Host) wrapRequestHandler(inner runloop.RequestHandler) runloop.RequestHandler {
	return func(ctx context.Context, req runloop.Frame) ([]byte, int32) {
		if req.Header.MessageType == constants.MessageTypeRequest {
			h.Observer.ObserveRequestReceived()
		} else {
			h.Observer.ObserveEventReceived()
		}
		if inner == nil {
			return nil, ErrCodeObjectNotFound.Value()
		}
		return inner(ctx, req)
	}
}

func (h *Host) onHeartbeat(frame runloop.Frame) {
	pluginID := frame.Header.SessionID
	h.Conns.MarkLive(pluginID, time.Now())
}

func (h *Host) sendHeartbeat(pluginID uint16) error {
	hdr := wire.NewHeader(constants.MessageTypeHeartbeat)
	hdr.SessionID = pluginID
	err := h.Transport.Send(transport.Frame{Header: hdr})
	h.Observer.ObserveHeartbeatSent()
	return err
}

func (h *Host) onPeerDead(info connmgr.ConnectionInfo) {
	h.Observer.ObserveHeartbeatMissed()
	h.Logger.Warnf("peer %d declared dead, last heartbeat %s", info.PluginID, info.LastHeartbeatAt)
	h.RunLoop.Stop()
}

// transportAdapter satisfies runloop.Transport over a *transport.Transport:
// the two packages define structurally identical but distinctly named
// Frame types, so this converts between them rather than letting either
// package import the other's Frame.
type transportAdapter struct {
	tp *transport.Transport
}

func (a *transportAdapter) Send(f runloop.Frame) error {
	return a.tp.Send(transport.Frame{Header: f.Header, Body: f.Body})
}

func (a *transportAdapter) Receive(ctx context.Context) (runloop.Frame, error) {
	f, err := a.tp.Receive(ctx)
	if err != nil {
		return runloop.Frame{}, err
	}
	return runloop.Frame{Header: f.Header, Body: f.Body}, nil
}
