package wire

import (
	"encoding/binary"

	"github.com/behrlich/das-ipc-host/internal/constants"
)

// Encode serializes h into its fixed 40-byte little-endian wire form,
// a field-by-field binary.LittleEndian.PutUintNN encoding.
func Encode(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.MessageType))
	binary.LittleEndian.PutUint16(buf[8:10], h.Flags)
	binary.LittleEndian.PutUint64(buf[10:18], h.CallID)
	binary.LittleEndian.PutUint32(buf[18:22], h.InterfaceID)
	binary.LittleEndian.PutUint16(buf[22:24], h.MethodID)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(h.ErrorCode))
	binary.LittleEndian.PutUint32(buf[28:32], h.BodySize)
	binary.LittleEndian.PutUint16(buf[32:34], h.SessionID)
	binary.LittleEndian.PutUint16(buf[34:36], h.Generation)
	binary.LittleEndian.PutUint32(buf[36:40], h.LocalID)
	return buf
}

// Decode parses a wire frame header from buf. Decoding fails fast on a
// magic mismatch, an unsupported version, an out-of-range message type,
// or a body_size that would exceed maxMessageSize.
func Decode(buf []byte, maxMessageSize uint32) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortBuffer
	}

	h := Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		MessageType: constants.MessageType(binary.LittleEndian.Uint16(buf[6:8])),
		Flags:       binary.LittleEndian.Uint16(buf[8:10]),
		CallID:      binary.LittleEndian.Uint64(buf[10:18]),
		InterfaceID: binary.LittleEndian.Uint32(buf[18:22]),
		MethodID:    binary.LittleEndian.Uint16(buf[22:24]),
		ErrorCode:   int32(binary.LittleEndian.Uint32(buf[24:28])),
		BodySize:    binary.LittleEndian.Uint32(buf[28:32]),
		SessionID:   binary.LittleEndian.Uint16(buf[32:34]),
		Generation:  binary.LittleEndian.Uint16(buf[34:36]),
		LocalID:     binary.LittleEndian.Uint32(buf[36:40]),
	}

	if h.Magic != constants.HeaderMagic {
		return Header{}, ErrInvalidMessageHeader
	}
	if h.Version > constants.CurrentVersion {
		// Forward-incompatible; a caller that knows how to downgrade
		// should retry via FromV1/ToV1 rather than treat this as fatal.
		return Header{}, ErrInvalidMessageHeader
	}
	if !h.MessageType.Valid() {
		return Header{}, ErrInvalidMessageHeader
	}
	if h.BodySize > maxMessageSize {
		return Header{}, ErrBodyTooLarge
	}

	return h, nil
}
