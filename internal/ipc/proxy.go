// Package ipc implements the Proxy/Stub base that sits on top of a
// RunLoop: a Proxy issues typed requests against a remote object id, and
// a Stub dispatches inbound requests against a local method table.
// Grounded on original_source's IPCProxyBase.h/DasProxyBase.h (proxy
// state and SendRequest/SendEvent) and IStubBase.h (method-table
// dispatch).
package ipc

import (
	"context"
	"fmt"

	"github.com/behrlich/das-ipc-host/internal/objectmgr"
	"github.com/behrlich/das-ipc-host/internal/runloop"
)

// Proxy is a thin client handle bound to one remote (or local) object.
// It holds no method table of its own; callers layer typed wrappers
// over SendRequest/SendEvent the way generated proxy classes do in the
// original.
type Proxy struct {
	InterfaceID uint32
	ObjectID    uint64

	runLoop *runloop.RunLoop
	objects *objectmgr.Manager
}

// NewProxy constructs a Proxy bound to objectID on interfaceID, using
// runLoop to carry requests/events.
func NewProxy(runLoop *runloop.RunLoop, objects *objectmgr.Manager, interfaceID uint32, objectID uint64) *Proxy {
	return &Proxy{
		InterfaceID: interfaceID,
		ObjectID:    objectID,
		runLoop:     runLoop,
		objects:     objects,
	}
}

// SendRequest issues methodID against the proxy's bound object and
// blocks for the matching response.
func (p *Proxy) SendRequest(ctx context.Context, methodID uint16, body []byte) ([]byte, error) {
	return p.runLoop.SendRequest(ctx, p.InterfaceID, p.ObjectID, methodID, body)
}

// SendEvent issues a fire-and-forget event against the proxy's bound
// object.
func (p *Proxy) SendEvent(methodID uint16, body []byte) error {
	return p.runLoop.SendEvent(p.InterfaceID, p.ObjectID, methodID, body)
}

// Release drops this proxy's reference to its bound object via the
// object manager, mirroring the original's proxy-destructor Release
// call.
func (p *Proxy) Release() error {
	if p.objects == nil {
		return nil
	}
	if err := p.objects.Release(p.ObjectID); err != nil {
		return fmt.Errorf("ipc: release proxy object: %w", err)
	}
	return nil
}
