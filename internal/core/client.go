package core

import "github.com/google/uuid"

// DefaultBuffer is the channel capacity used when NewClient gets a non-positive buffer.
const DefaultBuffer = 32

// Client is one live transport session as seen by the core layer.
// The transport writes Commands and reads Events; everything else is owned
// by the hub goroutine.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	identity string
	rooms    map[string]struct{}
	done     chan struct{}
	closed   bool

	// persistence queue, see Hub.startPersist
	pending  []*persistJob
	inFlight bool
}

// NewClient constructs a client with initialized channels.
// An empty id is replaced with a random UUID.
func NewClient(id string, buffer int) *Client {
	if id == "" {
		id = uuid.NewString()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
