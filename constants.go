package dasipc

import "github.com/behrlich/das-ipc-host/internal/constants"

// Re-exported protocol constants for callers of the public API who don't
// want to import internal/constants directly.
const (
	HeaderMagic        = constants.HeaderMagic
	CurrentVersion     = constants.CurrentVersion
	MaxReentrancyDepth = constants.MaxReentrancyDepth
	DefaultCallTimeout = constants.DefaultCallTimeout
	HeartbeatInterval  = constants.HeartbeatInterval
	HeartbeatTimeout   = constants.HeartbeatTimeout

	DefaultMaxMessageSize       = constants.DefaultMaxMessageSize
	DefaultMaxMessages          = constants.DefaultMaxMessages
	DefaultInitialSharedMemSize = constants.DefaultInitialSharedMemSize
	MaxSharedMemBlockNameLen    = constants.MaxSharedMemBlockNameLen
)

// MessageType re-exports constants.MessageType for callers building
// frames against the public API.
type MessageType = constants.MessageType

const (
	MessageTypeRequest   = constants.MessageTypeRequest
	MessageTypeResponse  = constants.MessageTypeResponse
	MessageTypeEvent     = constants.MessageTypeEvent
	MessageTypeHeartbeat = constants.MessageTypeHeartbeat
)
