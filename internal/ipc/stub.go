package ipc

import (
	"context"
	"fmt"
)

// MethodHandler handles one dispatched method call's body and returns
// the response body, or an error that the caller translates into a wire
// error code.
type MethodHandler func(ctx context.Context, body []byte) ([]byte, error)

// MethodMetadata names and binds one entry of a Stub's method table.
type MethodMetadata struct {
	MethodID uint16
	Name     string
	Handler  MethodHandler
}

// ErrMethodNotFound is returned by Dispatch for a methodID outside the
// table's registered range — the request targets a method this stub's
// version does not (yet) implement.
var ErrMethodNotFound = fmt.Errorf("ipc: method not found")

// Stub dispatches inbound REQUEST bodies to registered method handlers
// by numeric method id. Method tables are append-only between
// interface versions, so a stub built against a newer table still
// serves older method ids unchanged.
type Stub struct {
	InterfaceID uint32
	methods     map[uint16]MethodHandler
}

// NewStub constructs a Stub for interfaceID with the given method table.
func NewStub(interfaceID uint32, table []MethodMetadata) *Stub {
	s := &Stub{
		InterfaceID: interfaceID,
		methods:     make(map[uint16]MethodHandler, len(table)),
	}
	for _, m := range table {
		s.methods[m.MethodID] = m.Handler
	}
	return s
}

// Dispatch looks up methodID in the table and invokes its handler. A
// panic raised by the handler is recovered and returned as an error.
func (s *Stub) Dispatch(ctx context.Context, methodID uint16, body []byte) (resp []byte, err error) {
	handler, ok := s.methods[methodID]
	if !ok {
		return nil, ErrMethodNotFound
	}
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("ipc: method %d panicked: %v", methodID, r)
		}
	}()
	return handler(ctx, body)
}
