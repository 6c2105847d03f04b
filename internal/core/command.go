package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate binds an identity to the connection.
	CommandAuthenticate CommandKind = iota
	// CommandJoinRoom subscribes the connection to a named room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendRoomMessage stores and delivers a chat message to room members.
	CommandSendRoomMessage
	// CommandJoinDirect subscribes both parties of a direct conversation.
	CommandJoinDirect
	// CommandSendDirectMessage delivers a direct message to the pair room.
	CommandSendDirectMessage
	// CommandTyping marks the sender as typing in a room.
	CommandTyping
	// CommandStopTyping clears the sender's typing state.
	CommandStopTyping
	// CommandLogout drops the connection as if the transport disconnected.
	CommandLogout
)

var commandNames = map[CommandKind]string{
	CommandAuthenticate:      "authenticate",
	CommandJoinRoom:          "join_room",
	CommandLeaveRoom:         "leave_room",
	CommandSendRoomMessage:   "send_message",
	CommandJoinDirect:        "join_direct",
	CommandSendDirectMessage: "send_direct_message",
	CommandTyping:            "typing",
	CommandStopTyping:        "stop_typing",
	CommandLogout:            "logout",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
//
// Identity is used by CommandAuthenticate. SenderID and ReceiverID come from
// the payload and are checked against the bound identity by the hub.
type Command struct {
	Kind       CommandKind
	Room       string
	Identity   string
	SenderID   string
	ReceiverID string
	Message    Message
}
