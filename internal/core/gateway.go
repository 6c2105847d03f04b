package core

import (
	"context"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Gateway is the durable storage the hub records messages in before
// broadcasting them. Calls run off the hub goroutine.
type Gateway interface {
	// CreateMessage stores a room message and returns the stored record.
	CreateMessage(ctx context.Context, content, senderID, roomID string) (*store.Message, error)

	// CreateDirectMessage stores a direct message between two users.
	CreateDirectMessage(ctx context.Context, content, senderID, receiverID string) (*store.DirectMessage, error)

	// FindRoomByID looks up a named room.
	FindRoomByID(ctx context.Context, id string) (*store.Room, error)

	// FindUserByID looks up a user; used to fill in sender names.
	FindUserByID(ctx context.Context, id string) (*store.User, error)
}
