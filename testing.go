package dasipc

import (
	"context"
	"sync"

	"github.com/behrlich/das-ipc-host/internal/runloop"
)

// IPlugin is the collaborator surface a loaded plugin exposes to the
// host: enumerate its features by index, instantiate one, and report
// whether it is safe to unload.
type IPlugin interface {
	EnumFeature(index int) (string, bool)
	CreateFeatureInterface(index int) (any, error)
	CanUnloadNow() bool
}

// MockTransport is an in-memory runloop.Transport for unit testing a
// plugin or host component without a real message-queue pair: it
// implements the production interface and tracks every call for
// assertions.
type MockTransport struct {
	mu      sync.Mutex
	sent    []runloop.Frame
	inbox   chan runloop.Frame
	closed  bool
	sendErr error
}

// NewMockTransport creates a MockTransport with a buffered inbox of the
// given capacity.
func NewMockTransport(inboxCapacity int) *MockTransport {
	return &MockTransport{inbox: make(chan runloop.Frame, inboxCapacity)}
}

// Send implements runloop.Transport, recording f for later inspection.
func (t *MockTransport) Send(f runloop.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, f)
	return nil
}

// Receive implements runloop.Transport, blocking until a frame is
// injected via Inject, ctx is cancelled, or Close is called.
func (t *MockTransport) Receive(ctx context.Context) (runloop.Frame, error) {
	select {
	case f, ok := <-t.inbox:
		if !ok {
			return runloop.Frame{}, context.Canceled
		}
		return f, nil
	case <-ctx.Done():
		return runloop.Frame{}, ctx.Err()
	}
}

// Inject queues f to be returned by the next Receive call, simulating an
// inbound frame from a peer.
func (t *MockTransport) Inject(f runloop.Frame) {
	t.inbox <- f
}

// SetSendError makes every subsequent Send call fail with err, for
// exercising a run loop's transport-failure paths.
func (t *MockTransport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// Sent returns every frame passed to Send, in order.
func (t *MockTransport) Sent() []runloop.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]runloop.Frame, len(t.sent))
	copy(out, t.sent)
	return out
}

// Close stops any blocked Receive call with context.Canceled.
func (t *MockTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.inbox)
}

var _ runloop.Transport = (*MockTransport)(nil)

// MockPlugin is a test double for IPlugin: each feature is a name the
// caller registers up front, and CreateFeatureInterface returns whatever
// value was registered for that index.
type MockPlugin struct {
	mu sync.Mutex

	features     []string
	interfaces   map[int]any
	unloadable   bool
	enumCalls    int
	createCalls  int
}

// NewMockPlugin creates a plugin exposing the given feature names in
// order, index 0 first.
func NewMockPlugin(featureNames ...string) *MockPlugin {
	return &MockPlugin{
		features:   append([]string(nil), featureNames...),
		interfaces: make(map[int]any),
		unloadable: true,
	}
}

// SetFeatureInterface registers the value CreateFeatureInterface(index)
// should return.
func (p *MockPlugin) SetFeatureInterface(index int, iface any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interfaces[index] = iface
}

// SetUnloadable controls the value CanUnloadNow returns.
func (p *MockPlugin) SetUnloadable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloadable = v
}

// EnumFeature implements IPlugin.
func (p *MockPlugin) EnumFeature(index int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enumCalls++
	if index < 0 || index >= len(p.features) {
		return "", false
	}
	return p.features[index], true
}

// CreateFeatureInterface implements IPlugin.
func (p *MockPlugin) CreateFeatureInterface(index int) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if index < 0 || index >= len(p.features) {
		return nil, NewError("CreateFeatureInterface", ErrCodeObjectNotFound, "feature index out of range")
	}
	return p.interfaces[index], nil
}

// CanUnloadNow implements IPlugin.
func (p *MockPlugin) CanUnloadNow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unloadable
}

// CallCounts returns the number of times each IPlugin method was called.
func (p *MockPlugin) CallCounts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int{"enum": p.enumCalls, "create": p.createCalls}
}

var _ IPlugin = (*MockPlugin)(nil)
