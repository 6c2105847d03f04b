package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gateway adapts a Store to the create/find operations the relay needs.
type Gateway struct {
	st Store
}

// NewGateway wraps st.
func NewGateway(st Store) *Gateway {
	return &Gateway{st: st}
}

// CreateMessage stores a room message. The sender gets a user record on
// first use, named after its id.
func (g *Gateway) CreateMessage(ctx context.Context, content, senderID, roomID string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content is required")
	}
	if _, err := g.st.EnsureUser(ctx, senderID, senderID); err != nil {
		return nil, fmt.Errorf("ensure sender: %w", err)
	}

	msg := &Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.st.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// CreateDirectMessage stores a message between two users.
func (g *Gateway) CreateDirectMessage(ctx context.Context, content, senderID, receiverID string) (*DirectMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content is required")
	}

	msg := &DirectMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.st.SaveDirectMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save direct message: %w", err)
	}
	return msg, nil
}

// FindRoomByID looks up a named room.
func (g *Gateway) FindRoomByID(ctx context.Context, id string) (*Room, error) {
	return g.st.GetRoomByID(ctx, id)
}

// FindUserByID looks up a user.
func (g *Gateway) FindUserByID(ctx context.Context, id string) (*User, error) {
	return g.st.GetUserByID(ctx, id)
}
