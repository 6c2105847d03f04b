package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with a unique name.
	ErrConflict = errors.New("already exists")
)

// User represents a user in the system.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	CreatedAt    time.Time
}

// Room represents a named chat room.
type Room struct {
	ID          string
	Name        string
	Description string
	AdminID     string
	CreatedAt   time.Time
}

// Message represents a persisted room message.
type Message struct {
	ID        string
	RoomID    string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// DirectMessage represents a persisted message between two users.
type DirectMessage struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// EnsureUser returns the user with the given id, creating a passwordless
	// record named name when it does not exist yet.
	EnsureUser(ctx context.Context, id, name string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a registered user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers lists every known user ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room administered by adminID.
	CreateRoom(ctx context.Context, name, description, adminID string) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id string) (*Room, error)

	// ListRooms lists all rooms, newest first.
	ListRooms(ctx context.Context) ([]*Room, error)

	// UpdateRoom renames a room and replaces its description.
	UpdateRoom(ctx context.Context, id, name, description string) (*Room, error)

	// DeleteRoom removes a room together with its message history.
	DeleteRoom(ctx context.Context, id string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a room message.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit most recent messages of a room in chronological order.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)

	// SaveDirectMessage persists a direct message.
	SaveDirectMessage(ctx context.Context, msg *DirectMessage) error

	// ListDirectMessages returns up to limit most recent messages exchanged
	// between two users, in either direction, in chronological order.
	ListDirectMessages(ctx context.Context, userA, userB string, limit int) ([]*DirectMessage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
