package broker

import (
	"room-broker/internal/protocol"
)

// Interceptor is an optional host-application hook that observes and may
// transform every message a room emits. Returning an error converts the
// emit into an Err broadcast to the room; it never crashes dispatch.
type Interceptor interface {
	Intercept(msg protocol.Message) (protocol.Message, error)
}

// InterceptorReleaser is implemented by interceptors that hold resources.
// Release is called exactly once, when the owning room is deleted.
type InterceptorReleaser interface {
	Release()
}

// RoomHandle is handed to an InterceptorFactory so a host application can
// push its own messages into the room it is attached to.
type RoomHandle interface {
	Descriptor() protocol.RoomDescriptor
	// SendData broadcasts a Data message to the room on behalf of the
	// host application. The payload is marshaled to JSON.
	SendData(payload any)
}

// InterceptorFactory builds one interceptor per room. A nil factory, or a
// factory returning nil, leaves the room without a hook.
type InterceptorFactory func(room RoomHandle) Interceptor

// HostClientID is the fromClient value on messages injected through a
// RoomHandle.
const HostClientID = "hostApp"
