package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage delivers a chat message in a named room.
	EventRoomMessage EventKind = iota
	// EventDirectMessage delivers a message in a direct pair room.
	EventDirectMessage
	// EventUserTyping announces that a user started typing.
	EventUserTyping
	// EventUserStopTyping announces that a user stopped typing, explicitly or by expiry.
	EventUserStopTyping
	// EventUserJoined announces the first connection of an identity in a room.
	EventUserJoined
	// EventUserLeft announces that the last connection of an identity left a room.
	EventUserLeft
	// EventPresence carries the recomputed active user list of a room.
	EventPresence
	// EventAuthenticated confirms the identity bound to the connection.
	EventAuthenticated
	// EventError notifies the originating client about a rejected command.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after delivery.
type Event struct {
	Kind    EventKind
	Room    string
	User    string
	Users   []string
	Message Message
	Error   *CoreError
}
