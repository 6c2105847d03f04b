package core

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPersistTimeout bounds a single Gateway call.
const DefaultPersistTimeout = 5 * time.Second

// HubConfig tunes the hub.
//
// With RequireIdentity set, commands that carry a sender are rejected on
// connections that have not authenticated instead of trusting the claim.
type HubConfig struct {
	TypingTimeout   time.Duration
	PersistTimeout  time.Duration
	RequireIdentity bool
}

// Stats is a point-in-time snapshot of hub counters.
type Stats struct {
	Connections     int    `json:"connections"`
	Rooms           int    `json:"rooms"`
	MessagesRelayed uint64 `json:"messages_relayed"`
	MessagesFailed  uint64 `json:"messages_failed"`
}

type envelope struct {
	client *Client
	cmd    *Command
}

type typingExpiry struct {
	key typingKey
	gen uint64
}

// Hub owns all relay state: connections, room membership, presence and
// typing. Everything is mutated by the single goroutine running Run, so none
// of it is locked. Other goroutines talk to the hub through channels only.
type Hub struct {
	gateway Gateway
	cfg     HubConfig
	log     *zerolog.Logger

	registry *Registry
	members  *Membership
	presence *Presence
	typing   *Typing

	register   chan *Client
	unregister chan *Client
	inbox      chan envelope
	results    chan persistResult
	expiries   chan typingExpiry
	queries    chan func()
	done       chan struct{}

	ctx     context.Context
	relayed uint64
	failed  uint64
}

// NewHub creates a hub. A nil gateway relays messages without storing them.
func NewHub(gateway Gateway, cfg HubConfig, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}

	h := &Hub{
		gateway:    gateway,
		cfg:        cfg,
		log:        logger,
		registry:   NewRegistry(),
		members:    NewMembership(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbox:      make(chan envelope, 256),
		results:    make(chan persistResult, 64),
		expiries:   make(chan typingExpiry, 64),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		ctx:        context.Background(),
	}
	h.presence = NewPresence(h.registry, h.members)
	h.typing = newTyping(cfg.TypingTimeout, h.postExpiry)
	return h
}

// Run processes registrations, commands, persistence results, typing
// expiries and queries until ctx is cancelled. Call it once.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	defer h.shutdown()

	h.log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleDisconnect(c)
		case env := <-h.inbox:
			h.dispatch(env.client, env.cmd)
		case res := <-h.results:
			h.handlePersisted(res)
		case exp := <-h.expiries:
			h.handleTypingExpiry(exp)
		case q := <-h.queries:
			q()
		}
	}
}

// Done is closed after Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connect allocates a new anonymous connection and registers it.
func (h *Hub) Connect(buffer int) *Client {
	c := NewClient("", buffer)
	h.RegisterClient(c)
	return c
}

// RegisterClient adds the client to the hub and starts forwarding its Commands.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		return
	}
	go h.pump(c)
}

// UnregisterClient drops the client and cleans up its rooms. Safe to call
// more than once.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// pump forwards one client's commands into the hub inbox in order.
func (h *Hub) pump(c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.inbox <- envelope{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-h.done:
				return
			}
		case <-c.done:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) postExpiry(key typingKey, gen uint64) {
	select {
	case h.expiries <- typingExpiry{key: key, gen: gen}:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(c *Client) {
	if !h.registry.Add(c) {
		h.log.Warn().Str("client_id", c.ID).Msg("duplicate connection id rejected")
		h.sendError(c, coreError(ErrCodeBadRequest, "connection id already in use"))
		h.closeClient(c)
		return
	}
	h.log.Debug().Str("client_id", c.ID).Int("connections", h.registry.Len()).Msg("client registered")
}

func (h *Hub) handleDisconnect(c *Client) {
	if cur, ok := h.registry.Get(c.ID); !ok || cur != c {
		return
	}
	h.drop(c)
	h.log.Debug().Str("client_id", c.ID).Int("connections", h.registry.Len()).Msg("client unregistered")
}

// drop removes c from every room, forgets it and closes its event stream.
// Persistence calls already in flight still complete for the remaining members.
func (h *Hub) drop(c *Client) {
	for _, room := range c.roomList() {
		h.leave(room, c)
	}
	c.pending = nil
	h.registry.Remove(c.ID)
	h.closeClient(c)
}

func (h *Hub) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.Events)
}

func (h *Hub) shutdown() {
	h.typing.StopAll()
	for _, id := range h.allClientIDs() {
		if c, ok := h.registry.Get(id); ok {
			h.closeClient(c)
		}
	}
	close(h.done)
	h.log.Info().Msg("hub stopped")
}

func (h *Hub) allClientIDs() []string {
	ids := make([]string, 0, len(h.registry.clients))
	for id := range h.registry.clients {
		ids = append(ids, id)
	}
	return ids
}

// deliver hands ev to one client without blocking; slow consumers lose the event.
func (h *Hub) deliver(c *Client, ev *Event) {
	if c.closed {
		return
	}
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("client_id", c.ID).Str("room", ev.Room).Msg("client buffer full, event dropped")
	}
}

// broadcast delivers ev to every member of room except the connection except.
func (h *Hub) broadcast(room string, ev *Event, except string) {
	for _, id := range h.members.MembersOf(room) {
		if id == except {
			continue
		}
		if c, ok := h.registry.Get(id); ok {
			h.deliver(c, ev)
		}
	}
}

func (h *Hub) sendError(c *Client, ce *CoreError) {
	h.deliver(c, &Event{Kind: EventError, Error: ce})
}

// query runs fn on the hub goroutine and waits for its result. The result
// travels over a buffered channel, so a caller that gives up early never
// shares memory with the hub.
func query[T any](ctx context.Context, h *Hub, fn func() T) (T, error) {
	var zero T
	result := make(chan T, 1)
	select {
	case h.queries <- func() { result <- fn() }:
	case <-h.done:
		return zero, ErrHubStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// MembersOf returns the connection ids joined to room.
func (h *Hub) MembersOf(ctx context.Context, room string) ([]string, error) {
	return query(ctx, h, func() []string { return h.members.MembersOf(room) })
}

// ActiveUsers returns the distinct identities present in room.
func (h *Hub) ActiveUsers(ctx context.Context, room string) ([]string, error) {
	return query(ctx, h, func() []string { return h.presence.ActiveUsers(room) })
}

// TypingUsers returns the identities currently typing in room.
func (h *Hub) TypingUsers(ctx context.Context, room string) ([]string, error) {
	return query(ctx, h, func() []string { return h.typing.Users(room) })
}

// Stats returns hub counters.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	return query(ctx, h, func() Stats {
		return Stats{
			Connections:     h.registry.Len(),
			Rooms:           h.members.Len(),
			MessagesRelayed: h.relayed,
			MessagesFailed:  h.failed,
		}
	})
}

func (c *Client) roomList() []string {
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}
