package wire

// DecodeError is a string-based error type for the fixed set of framing
// failures.
type DecodeError string

func (e DecodeError) Error() string { return string(e) }

const (
	ErrInvalidMessageHeader DecodeError = "invalid message header"
	ErrBodyTooLarge         DecodeError = "body size exceeds transport maximum"
	ErrShortBuffer          DecodeError = "buffer too short for header"
)
