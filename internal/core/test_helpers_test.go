package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()
	return mustEventIn(t, ch, kind, "")
}

// mustEventIn waits for an event of kind, optionally in room, skipping everything else.
func mustEventIn(t *testing.T, ch <-chan *Event, kind EventKind, room string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind && (room == "" || ev.Room == room) {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timeout := time.After(wait)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		case <-timeout:
			return
		}
	}
}

func startHub(t *testing.T, gw Gateway, cfg HubConfig) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(gw, cfg, nil)
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

func connectAs(t *testing.T, hub *Hub, identity string) *Client {
	t.Helper()

	c := NewClient("", 64)
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandAuthenticate, Identity: identity}
	ev := mustEvent(t, c.Events, EventAuthenticated)
	if ev.User != identity {
		t.Fatalf("authenticated as %q, want %q", ev.User, identity)
	}
	return c
}

func joinRoom(t *testing.T, c *Client, room string) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: room}
	mustEventIn(t, c.Events, EventPresence, room)
}

type fakeGateway struct {
	mu       sync.Mutex
	fail     error
	delays   []time.Duration
	calls    int
	messages []store.Message
	direct   []store.DirectMessage
	users    map[string]*store.User
	rooms    map[string]string
}

var errStoreDown = errors.New("store down")

func (g *fakeGateway) nextDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	var d time.Duration
	if g.calls < len(g.delays) {
		d = g.delays[g.calls]
	}
	g.calls++
	return d
}

func (g *fakeGateway) CreateMessage(ctx context.Context, content, senderID, roomID string) (*store.Message, error) {
	if d := g.nextDelay(); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return nil, g.fail
	}
	msg := store.Message{
		ID:        "m" + string(rune('0'+len(g.messages))),
		RoomID:    roomID,
		UserID:    senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	g.messages = append(g.messages, msg)
	return &msg, nil
}

func (g *fakeGateway) CreateDirectMessage(_ context.Context, content, senderID, receiverID string) (*store.DirectMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return nil, g.fail
	}
	msg := store.DirectMessage{
		ID:         "d" + string(rune('0'+len(g.direct))),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	g.direct = append(g.direct, msg)
	return &msg, nil
}

func (g *fakeGateway) FindRoomByID(_ context.Context, id string) (*store.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if name, ok := g.rooms[id]; ok {
		return &store.Room{ID: id, Name: name}, nil
	}
	return nil, store.ErrNotFound
}

func (g *fakeGateway) FindUserByID(_ context.Context, id string) (*store.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u, ok := g.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (g *fakeGateway) storedMessages() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.messages)
}
