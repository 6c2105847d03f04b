package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello             = "hello"
	InboundTypeJoinRoom          = "join_room"
	InboundTypeLeaveRoom         = "leave_room"
	InboundTypeSendMessage       = "send_message"
	InboundTypeJoinDirect        = "join_direct"
	InboundTypeSendDirectMessage = "send_direct_message"
	InboundTypeTyping            = "typing"
	InboundTypeStopTyping        = "stop_typing"
	InboundTypeLogout            = "logout"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReady                = "ready"
	EventAuthenticated        = "authenticated"
	EventReceiveMessage       = "receive_message"
	EventReceiveDirectMessage = "receive_direct_message"
	EventUserTyping           = "user_typing"
	EventUserStopTyping       = "user_stop_typing"
	EventUserJoined           = "user_joined"
	EventUserLeft             = "user_left"
	EventPresence             = "presence"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     string `json:"user"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// RoomData names a room. It also accepts a bare JSON string, the form
// browser clients send for join_room.
type RoomData struct {
	Room string `json:"room"`
}

func (d *RoomData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &d.Room)
	}
	type plain RoomData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = RoomData(p)
	return nil
}

// SendMessageData is a chat message for a named room.
type SendMessageData struct {
	Room       string `json:"room"`
	Content    string `json:"content"`
	SenderID   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
}

// JoinDirectData opens the pair room of two users.
type JoinDirectData struct {
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId"`
}

// SendDirectMessageData is a message to one user. A non-empty ID marks a
// message the client already stored.
type SendDirectMessageData struct {
	ID         string `json:"id,omitempty"`
	Content    string `json:"content"`
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// TypingData targets either a room or, with ReceiverID, a direct conversation.
// IsTyping=false on a typing message is treated as stop_typing.
type TypingData struct {
	Room       string `json:"room,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	SenderID   string `json:"senderId,omitempty"`
	User       string `json:"user,omitempty"`
	IsTyping   *bool  `json:"isTyping,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ReadyPayload is the first event on every connection.
type ReadyPayload struct {
	ConnectionID string `json:"connectionId"`
	Identity     string `json:"identity,omitempty"`
	Protocol     int    `json:"protocol"`
}

// AuthenticatedPayload confirms the identity bound by hello.
type AuthenticatedPayload struct {
	Identity string `json:"identity"`
}

// MessagePayload is a relayed room message.
type MessagePayload struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	RoomName   string `json:"roomName,omitempty"`
	Content    string `json:"content"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// DirectMessagePayload is a relayed direct message.
type DirectMessagePayload struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	Content    string `json:"content"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	ReceiverID string `json:"receiverId"`
	CreatedAt  string `json:"createdAt"`
}

// TypingPayload announces a typing transition together with everyone
// still typing in the room.
type TypingPayload struct {
	Room     string   `json:"room"`
	SenderID string   `json:"senderId"`
	IsTyping bool     `json:"isTyping"`
	Users    []string `json:"users"`
}

// PresencePayload lists the distinct identities present in a room.
type PresencePayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// UserEventPayload notifies that a user joined or left a room.
type UserEventPayload struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// DecodeData unmarshals the data of an inbound envelope into v.
func DecodeData(in *Inbound, v any) error {
	if len(in.Data) == 0 {
		return fmt.Errorf("%s: missing data", in.Type)
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return fmt.Errorf("%s: %w", in.Type, err)
	}
	return nil
}
