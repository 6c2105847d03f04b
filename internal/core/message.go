package core

import "time"

// Message is a chat message as relayed to clients.
// ReceiverID is set for direct messages only.
type Message struct {
	ID         string
	Room       string
	RoomName   string
	SenderID   string
	SenderName string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
}
