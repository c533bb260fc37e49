// Package dasipc is the plugin-host IPC runtime: binary framing, shared
// memory, message-queue transport, a single-threaded run loop, object
// lifetime tracking, and a cooperative task scheduler, wired together as
// a process-owned Host.
package dasipc

import (
	"errors"
	"fmt"
)

// Error is the structured error of this root package: an Op/Code/Inner
// taxonomy closed over the IPC error codes enumerated in IpcErrorCode.
// The internal packages return their own plain errors, which WrapError
// can attach a code to.
type Error struct {
	Op    string // operation that failed, e.g. "SendRequest", "RegisterLocalObject"
	Code  IpcErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Op != "" {
		return fmt.Sprintf("dasipc: %s: %s (code=%d)", e.Op, msg, e.Code.Value())
	}
	return fmt.Sprintf("dasipc: %s (code=%d)", msg, e.Code.Value())
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// IpcErrorCode is the closed set of negative-valued protocol error codes,
// reserved in the range -1080000000+k.
type IpcErrorCode int

// Value returns the reserved negative wire value for this code.
func (c IpcErrorCode) Value() int32 {
	return -1080000000 + int32(c)
}

const (
	ErrCodeInvalidMessageHeader IpcErrorCode = iota + 1
	ErrCodeTimeout
	ErrCodeInvalidHandle
	ErrCodeStaleHandle
	ErrCodePeerLost
	ErrCodeSharedMemoryFailure
	ErrCodeConnectionClosed
	ErrCodeReentrancy
	ErrCodeOutOfMemory
	ErrCodeInvalidState
	ErrCodeObjectNotFound
)

func (c IpcErrorCode) String() string {
	switch c {
	case ErrCodeInvalidMessageHeader:
		return "InvalidMessageHeader"
	case ErrCodeTimeout:
		return "Timeout"
	case ErrCodeInvalidHandle:
		return "InvalidHandle"
	case ErrCodeStaleHandle:
		return "StaleHandle"
	case ErrCodePeerLost:
		return "PeerLost"
	case ErrCodeSharedMemoryFailure:
		return "SharedMemoryFailure"
	case ErrCodeConnectionClosed:
		return "ConnectionClosed"
	case ErrCodeReentrancy:
		return "Reentrancy"
	case ErrCodeOutOfMemory:
		return "OutOfMemory"
	case ErrCodeInvalidState:
		return "InvalidState"
	case ErrCodeObjectNotFound:
		return "ObjectNotFound"
	default:
		return "Unknown"
	}
}

// NewError constructs an *Error with no wrapped cause.
func NewError(op string, code IpcErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError attaches op/code context to inner, preserving it for
// errors.Unwrap. A nil inner returns nil.
func WrapError(op string, code IpcErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ie, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: ie.Code, Msg: ie.Msg, Inner: ie}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is an *Error carrying code.
func IsCode(err error, code IpcErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
