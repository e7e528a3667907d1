package broker

import "errors"

var (
	// ErrInvalidArgs is returned when a room identity is missing its app
	// or version. Wrapped errors carry the offending fields.
	ErrInvalidArgs = errors.New("missing required room info")

	// ErrNotFound is returned when joining a room that does not exist and
	// makeRoomIfNonExistant was not set.
	ErrNotFound = errors.New("room does not exist")

	// ErrUnauthorized is returned on a password mismatch. An empty or
	// absent password is normalized to "no password" on both sides.
	ErrUnauthorized = errors.New("wrong password for room")

	// ErrAtCapacity is returned when a room's maxClients is reached.
	ErrAtCapacity = errors.New("room is at capacity and cannot accept more clients due to the room's chosen settings")

	// ErrAlreadyMember guards against the same client joining a room twice.
	ErrAlreadyMember = errors.New("client is already in the room")

	// ErrAlreadyInRoom is returned when a client tries to join a room
	// while still associated with another one. The client must send
	// LeaveRoom first.
	ErrAlreadyInRoom = errors.New("client must leave its current room before joining another")

	// ErrNotInRoom is returned for Data messages from clients that have
	// not joined a room.
	ErrNotInRoom = errors.New("client is not in a room")
)
