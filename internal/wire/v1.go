package wire

import (
	"encoding/binary"

	"github.com/behrlich/das-ipc-host/internal/constants"
)

// V1Header is the legacy wire projection, carried for transition-period
// compatibility. It widens interface_id into a 16-byte type_id so that a
// v1 peer, which never heard of the 32-bit interface_id field, can still
// route on the low 4 bytes.
type V1Header struct {
	Magic     uint32
	Version   uint16
	TypeID    [16]byte
	CallID    uint64
	MethodID  uint16
	ErrorCode int32
	BodySize  uint32
}

// ToV1 projects a canonical Header down into its v1 form by zero-extending
// InterfaceID into the low 4 bytes of TypeID.
func ToV1(h Header) V1Header {
	var v V1Header
	v.Magic = h.Magic
	v.Version = constants.CurrentVersionV1
	binary.LittleEndian.PutUint32(v.TypeID[0:4], h.InterfaceID)
	v.CallID = h.CallID
	v.MethodID = h.MethodID
	v.ErrorCode = h.ErrorCode
	v.BodySize = h.BodySize
	return v
}

// FromV1 recovers a canonical Header from a v1 wire header, tagging it with
// messageType since the v1 layout carries no type field of its own. It
// refuses to guess at a truncated interface id: if any of the high 12
// bytes of TypeID are non-zero, the v1 header did not originate from a
// zero-extended 32-bit interface id and cannot be losslessly projected
// back, so FromV1 fails rather than silently dropping information.
func FromV1(v V1Header, messageType constants.MessageType) (Header, error) {
	for _, b := range v.TypeID[4:16] {
		if b != 0 {
			return Header{}, ErrInvalidMessageHeader
		}
	}
	h := Header{
		Magic:       v.Magic,
		Version:     v.Version,
		MessageType: messageType,
		InterfaceID: binary.LittleEndian.Uint32(v.TypeID[0:4]),
		CallID:      v.CallID,
		MethodID:    v.MethodID,
		ErrorCode:   v.ErrorCode,
		BodySize:    v.BodySize,
	}
	return h, nil
}
