// Package runloop implements the single-threaded cooperative dispatcher
// that owns one transport: it matches RESPONSE frames to outstanding
// requests by call-id, dispatches REQUEST/EVENT frames to a registered
// handler (which may itself re-enter with further requests), and caps
// re-entrant nesting depth. The pinned-goroutine, tag-matched-completion
// shape and the cooperative select-loop dispatch are adapted from a
// pinned I/O-loop runner and a cooperative scheduler loop, reworked from
// per-tag slots to a stack of outstanding call-ids.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/behrlich/das-ipc-host/internal/constants"
	"github.com/behrlich/das-ipc-host/internal/guid"
	"github.com/behrlich/das-ipc-host/internal/wire"
)

// ErrReentrancy is returned by SendRequest when issuing it would exceed
// constants.MaxReentrancyDepth outstanding nested calls.
var ErrReentrancy = errors.New("runloop: maximum re-entrancy depth exceeded")

// ErrCancelled is returned to a caller whose NestedCallContext was marked
// cancelled before its response arrived.
var ErrCancelled = errors.New("runloop: call cancelled")

// ErrStopped is returned to a caller whose request was still pending
// when Stop drained the run loop.
var ErrStopped = errors.New("runloop: run loop stopped")

// Frame is a decoded header paired with its body.
type Frame struct {
	Header wire.Header
	Body   []byte
}

// Transport is the minimal surface the run loop needs from the
// underlying message-queue transport.
type Transport interface {
	Send(Frame) error
	Receive(ctx context.Context) (Frame, error)
}

// RequestHandler dispatches an inbound REQUEST or EVENT frame. For a
// REQUEST it returns the response body and error code to send back; for
// an EVENT the return values are ignored (callers should treat it as
// fire-and-forget plumbing even if EVENT handling is wired through the
// same function).
type RequestHandler func(ctx context.Context, req Frame) (respBody []byte, errCode int32)

// HeartbeatHandler receives HEARTBEAT frames, forwarded here so C9 (the
// connection manager) can track peer liveness.
type HeartbeatHandler func(Frame)

// nestedCallContext tracks one outstanding SendRequest, pushed onto the
// run loop's stack at issue time and popped when its response arrives,
// is cancelled, or the loop stops.
type nestedCallContext struct {
	callID    uint64
	done      chan struct{}
	once      sync.Once
	respBody  []byte
	errCode   int32
	err       error
	cancelled bool
}

func (c *nestedCallContext) complete(body []byte, errCode int32, err error) {
	c.once.Do(func() {
		c.respBody = body
		c.errCode = errCode
		c.err = err
		close(c.done)
	})
}

// RunLoop is a single-threaded cooperative dispatcher bound to one
// transport. It is not safe to call SendRequest concurrently from
// multiple goroutines against the same RunLoop: the model is one
// logical thread of control that may re-enter itself, not parallel
// dispatch.
type RunLoop struct {
	transport   Transport
	onRequest   RequestHandler
	onHeartbeat HeartbeatHandler
	maxDepth    int

	mu         sync.Mutex
	stack      []*nestedCallContext
	nextCallID uint64
	stopped    bool
}

// Config configures a new RunLoop.
type Config struct {
	Transport        Transport
	OnRequest        RequestHandler
	OnHeartbeat      HeartbeatHandler
	MaxReentrantDepth int // 0 defaults to constants.MaxReentrancyDepth
}

// New constructs a RunLoop from cfg.
func New(cfg Config) *RunLoop {
	maxDepth := cfg.MaxReentrantDepth
	if maxDepth <= 0 {
		maxDepth = constants.MaxReentrancyDepth
	}
	return &RunLoop{
		transport:   cfg.Transport,
		onRequest:   cfg.OnRequest,
		onHeartbeat: cfg.OnHeartbeat,
		maxDepth:    maxDepth,
		nextCallID:  1,
	}
}

// SendRequest issues a REQUEST frame for the given interface/object/method
// and blocks, pumping the run loop itself, until a matching RESPONSE
// arrives, ctx is cancelled, or the loop is stopped. Because the model is
// cooperative and single-threaded, a handler invoked from within this
// pump may itself call SendRequest again; that nested call is the
// re-entrancy this function caps.
func (rl *RunLoop) SendRequest(ctx context.Context, interfaceID uint32, objectID uint64, methodID uint16, body []byte) ([]byte, error) {
	rl.mu.Lock()
	if rl.stopped {
		rl.mu.Unlock()
		return nil, ErrStopped
	}
	if len(rl.stack) >= rl.maxDepth {
		rl.mu.Unlock()
		return nil, ErrReentrancy
	}

	callID := rl.nextCallID
	rl.nextCallID++
	cctx := &nestedCallContext{callID: callID, done: make(chan struct{})}
	rl.stack = append(rl.stack, cctx)
	rl.mu.Unlock()

	defer rl.popContext(cctx)

	oid := guid.DecodeObjectId(objectID)
	h := wire.NewHeader(constants.MessageTypeRequest)
	h.CallID = callID
	h.InterfaceID = interfaceID
	h.MethodID = methodID
	h.BodySize = uint32(len(body))
	h.SessionID = oid.SessionID
	h.Generation = oid.Generation
	h.LocalID = oid.LocalID

	if err := rl.transport.Send(Frame{Header: h, Body: body}); err != nil {
		return nil, fmt.Errorf("runloop: send request: %w", err)
	}

	return rl.pumpUntil(ctx, cctx)
}

// SendEvent issues a fire-and-forget EVENT frame; it does not wait for a
// response and does not participate in re-entrancy accounting.
func (rl *RunLoop) SendEvent(interfaceID uint32, objectID uint64, methodID uint16, body []byte) error {
	oid := guid.DecodeObjectId(objectID)
	h := wire.NewHeader(constants.MessageTypeEvent)
	h.InterfaceID = interfaceID
	h.MethodID = methodID
	h.BodySize = uint32(len(body))
	h.SessionID = oid.SessionID
	h.Generation = oid.Generation
	h.LocalID = oid.LocalID
	return rl.transport.Send(Frame{Header: h, Body: body})
}

// pumpUntil drives the transport's receive loop, dispatching whatever
// arrives, until target completes, ctx is done, or the loop stops. A
// child context is cancelled as soon as target completes so that a
// blocked Receive (e.g. because some other in-flight pump, or Stop,
// satisfied target first) unblocks promptly instead of waiting for the
// next frame that may never come.
func (rl *RunLoop) pumpUntil(ctx context.Context, target *nestedCallContext) ([]byte, error) {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-target.done:
			cancel()
		case <-pumpCtx.Done():
		}
	}()

	for {
		select {
		case <-target.done:
			if target.cancelled {
				return nil, ErrCancelled
			}
			return target.respBody, target.err
		default:
		}

		frame, err := rl.transport.Receive(pumpCtx)
		if err != nil {
			select {
			case <-target.done:
				if target.cancelled {
					return nil, ErrCancelled
				}
				return target.respBody, target.err
			default:
			}
			target.complete(nil, 0, err)
			return nil, err
		}
		rl.dispatch(ctx, frame)
	}
}

func (rl *RunLoop) dispatch(ctx context.Context, frame Frame) {
	switch frame.Header.MessageType {
	case constants.MessageTypeRequest:
		rl.handleRequest(ctx, frame)
	case constants.MessageTypeEvent:
		if rl.onRequest != nil {
			rl.onRequest(ctx, frame)
		}
	case constants.MessageTypeResponse:
		rl.handleResponse(frame)
	case constants.MessageTypeHeartbeat:
		if rl.onHeartbeat != nil {
			rl.onHeartbeat(frame)
		}
	}
}

func (rl *RunLoop) handleRequest(ctx context.Context, frame Frame) {
	var body []byte
	var errCode int32
	if rl.onRequest != nil {
		body, errCode = rl.onRequest(ctx, frame)
	}

	resp := wire.NewHeader(constants.MessageTypeResponse)
	resp.CallID = frame.Header.CallID
	resp.InterfaceID = frame.Header.InterfaceID
	resp.MethodID = frame.Header.MethodID
	resp.ErrorCode = errCode
	resp.BodySize = uint32(len(body))
	resp.SessionID = frame.Header.SessionID
	resp.Generation = frame.Header.Generation
	resp.LocalID = frame.Header.LocalID

	_ = rl.transport.Send(Frame{Header: resp, Body: body})
}

// handleResponse matches frame against the stack of outstanding calls,
// scanning from the most recently issued call down to the oldest, and
// completes the first match.
func (rl *RunLoop) handleResponse(frame Frame) {
	rl.mu.Lock()
	var target *nestedCallContext
	for i := len(rl.stack) - 1; i >= 0; i-- {
		if rl.stack[i].callID == frame.Header.CallID {
			target = rl.stack[i]
			break
		}
	}
	rl.mu.Unlock()

	if target == nil {
		return // unmatched response; no outstanding call for this call_id
	}

	var err error
	if frame.Header.ErrorCode != 0 {
		err = fmt.Errorf("runloop: remote error code %d", frame.Header.ErrorCode)
	}
	target.complete(frame.Body, frame.Header.ErrorCode, err)
}

func (rl *RunLoop) popContext(target *nestedCallContext) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for i := len(rl.stack) - 1; i >= 0; i-- {
		if rl.stack[i] == target {
			rl.stack = append(rl.stack[:i], rl.stack[i+1:]...)
			break
		}
	}
}

// Run drives the idle path: it receives and dispatches frames in a loop
// until ctx is cancelled or Stop is called, the counterpart to
// pumpUntil for REQUEST/EVENT/HEARTBEAT traffic that arrives with no
// SendRequest call currently waiting on a response. A Host runs this on
// its own goroutine alongside whatever goroutines call SendRequest.
func (rl *RunLoop) Run(ctx context.Context) error {
	for {
		rl.mu.Lock()
		stopped := rl.stopped
		rl.mu.Unlock()
		if stopped {
			return ErrStopped
		}

		frame, err := rl.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		rl.dispatch(ctx, frame)
	}
}

// Stop marks the loop stopped and completes every outstanding call with
// ErrStopped, draining the pending-call stack from the top down.
func (rl *RunLoop) Stop() {
	rl.mu.Lock()
	rl.stopped = true
	pending := rl.stack
	rl.stack = nil
	rl.mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		pending[i].complete(nil, 0, ErrStopped)
	}
}

// Depth reports the current re-entrancy depth (number of outstanding
// SendRequest calls on this loop).
func (rl *RunLoop) Depth() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.stack)
}
