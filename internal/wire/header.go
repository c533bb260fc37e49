// Package wire implements the fixed-layout MessageHeader framing and its
// v1 legacy projection. Layout and failure modes follow the original IPC
// header (das/Core/IPC/IpcMessageHeader.h), coded in a manual
// binary.LittleEndian struct marshal/unmarshal style.
package wire

import "github.com/behrlich/das-ipc-host/internal/constants"

// HeaderSize is the fixed encoded size of Header in bytes.
const HeaderSize = 40

// Header is the fixed-size frame header preceding every message body.
type Header struct {
	Magic       uint32
	Version     uint16
	MessageType constants.MessageType
	Flags       uint16
	CallID      uint64
	InterfaceID uint32
	MethodID    uint16
	ErrorCode   int32
	BodySize    uint32
	SessionID   uint16
	Generation  uint16
	LocalID     uint32
}

// NewHeader builds a header with the current magic/version populated.
func NewHeader(mt constants.MessageType) Header {
	return Header{
		Magic:       constants.HeaderMagic,
		Version:     constants.CurrentVersion,
		MessageType: mt,
	}
}

// HasLargeBody reports whether the large-body flag is set.
func (h Header) HasLargeBody() bool {
	return h.Flags&constants.FlagLargeBody != 0
}

// SetLargeBody sets or clears the large-body flag.
func (h *Header) SetLargeBody(v bool) {
	if v {
		h.Flags |= constants.FlagLargeBody
	} else {
		h.Flags &^= constants.FlagLargeBody
	}
}

// ObjectIDEncoded packs the embedded ObjectId fields into their 64-bit
// wire form.
func (h Header) ObjectIDEncoded() uint64 {
	return (uint64(h.SessionID) << 48) | (uint64(h.Generation) << 32) | uint64(h.LocalID)
}
