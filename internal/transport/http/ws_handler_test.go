package http

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestServerRoutesWebSocketBesideRouter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// the upgrade must complete and deliver frames, not just the 101
	conn := env.dial(t, ctx, "")
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "alice"})
	readUntil(t, ctx, conn, isEvent(proto.EventAuthenticated))

	resp, err := env.ts.Client().Get(env.ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("gin routes must still be served, got status %d", resp.StatusCode)
	}
}

func TestWebSocketRoomMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "")
	bob := env.dial(t, ctx, "")

	helloAndJoin(t, ctx, bob, "bob", "general")
	helloAndJoin(t, ctx, alice, "alice", "general")

	send(t, ctx, alice, proto.InboundTypeSendMessage, proto.SendMessageData{Room: "general", Content: "hi there", SenderName: "Alice"})

	got, _ := readUntil(t, ctx, bob, isEvent(proto.EventReceiveMessage))
	var msg proto.MessagePayload
	if err := json.Unmarshal(got.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.SenderID != "alice" || msg.Content != "hi there" || msg.Room != "general" || msg.SenderName != "Alice" {
		t.Fatalf("unexpected message payload: %+v", msg)
	}
	if msg.ID == "" || msg.CreatedAt == "" {
		t.Fatalf("stored message must carry id and timestamp: %+v", msg)
	}

	// The sender is excluded: an error reply to a later frame arrives without
	// the message in between.
	send(t, ctx, alice, "dance", nil)
	_, skipped := readUntil(t, ctx, alice, isError(core.ErrCodeInvalidMessage))
	for _, f := range skipped {
		if f.Event == proto.EventReceiveMessage {
			t.Fatalf("sender received its own message")
		}
	}

	history, err := env.store.ListMessages(ctx, "general", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("message not stored: %+v", history)
	}
}

func TestWebSocketEmptyContentRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "")
	helloAndJoin(t, ctx, alice, "alice", "general")

	send(t, ctx, alice, proto.InboundTypeSendMessage, proto.SendMessageData{Room: "general", Content: "   "})
	readUntil(t, ctx, alice, isError(core.ErrCodeEmptyContent))
}

func TestWebSocketMalformedFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "")
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, ctx, conn)
	if f.Type != proto.OutboundTypeError || f.Error.Code != core.ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %+v", f)
	}

	// the connection stays usable
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "alice"})
	readUntil(t, ctx, conn, isEvent(proto.EventAuthenticated))
}

func TestWebSocketDirectMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "")
	bob := env.dial(t, ctx, "")

	send(t, ctx, alice, proto.InboundTypeHello, proto.HelloData{User: "alice"})
	readUntil(t, ctx, alice, isEvent(proto.EventAuthenticated))
	send(t, ctx, bob, proto.InboundTypeHello, proto.HelloData{User: "bob"})
	readUntil(t, ctx, bob, isEvent(proto.EventAuthenticated))

	room := core.DirectRoomID("alice", "bob")
	send(t, ctx, alice, proto.InboundTypeJoinDirect, proto.JoinDirectData{ReceiverID: "bob"})
	readUntil(t, ctx, bob, presenceIncludes(room, "bob"))
	readUntil(t, ctx, alice, presenceIncludes(room, "alice"))

	send(t, ctx, alice, proto.InboundTypeTyping, proto.TypingData{ReceiverID: "bob"})
	typing, _ := readUntil(t, ctx, bob, isEvent(proto.EventUserTyping))
	var tp proto.TypingPayload
	if err := json.Unmarshal(typing.Data, &tp); err != nil {
		t.Fatalf("unmarshal typing: %v", err)
	}
	if tp.Room != room || tp.SenderID != "alice" || !tp.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", tp)
	}

	send(t, ctx, alice, proto.InboundTypeSendDirectMessage, proto.SendDirectMessageData{Content: "psst", ReceiverID: "bob"})
	got, _ := readUntil(t, ctx, bob, isEvent(proto.EventReceiveDirectMessage))
	var dm proto.DirectMessagePayload
	if err := json.Unmarshal(got.Data, &dm); err != nil {
		t.Fatalf("unmarshal direct message: %v", err)
	}
	if dm.SenderID != "alice" || dm.ReceiverID != "bob" || dm.Content != "psst" || dm.Room != room {
		t.Fatalf("unexpected direct message: %+v", dm)
	}

	stored, err := env.store.ListDirectMessages(ctx, "bob", "alice", 10)
	if err != nil {
		t.Fatalf("list direct messages: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != dm.ID {
		t.Fatalf("direct message not stored: %+v", stored)
	}
}

func TestWebSocketTypingExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "")
	bob := env.dial(t, ctx, "")
	helloAndJoin(t, ctx, bob, "bob", "general")
	helloAndJoin(t, ctx, alice, "alice", "general")

	send(t, ctx, alice, proto.InboundTypeTyping, proto.TypingData{Room: "general"})
	readUntil(t, ctx, bob, isEvent(proto.EventUserTyping))

	// nothing else is sent; the typing timeout ends it
	stop, _ := readUntil(t, ctx, bob, isEvent(proto.EventUserStopTyping))
	var tp proto.TypingPayload
	if err := json.Unmarshal(stop.Data, &tp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tp.SenderID != "alice" || tp.IsTyping || len(tp.Users) != 0 {
		t.Fatalf("unexpected stop payload: %+v", tp)
	}
}

func TestWebSocketTokenOnUpgrade(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.JWTSecret = "testsecret" })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, identity := env.register(t, "alice")

	conn := env.dial(t, ctx, "?token="+token)
	got, _ := readUntil(t, ctx, conn, isEvent(proto.EventAuthenticated))
	var ap proto.AuthenticatedPayload
	if err := json.Unmarshal(got.Data, &ap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ap.Identity != identity {
		t.Fatalf("identity %q, want %q", ap.Identity, identity)
	}

	// a claimed sender that is not the token identity is refused
	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Room: "general", Content: "hi", SenderID: "mallory"})
	readUntil(t, ctx, conn, isError(core.ErrCodeIdentityMismatch))
}

func TestWebSocketHelloRequiresToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.JWTSecret = "testsecret" })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "")

	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "alice"})
	f := readFrame(t, ctx, conn)
	if f.Type != proto.OutboundTypeError || f.Error == nil || f.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", f)
	}

	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{Token: "invalid"})
	f = readFrame(t, ctx, conn)
	if f.Type != proto.OutboundTypeError || f.Error == nil || f.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", f)
	}
}

func TestWebSocketAnonymousCannotClaimSender(t *testing.T) {
	env := newTestEnv(t, withSecret)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, bobID := env.register(t, "bob")
	bob := env.dial(t, ctx, "?token="+token)
	readUntil(t, ctx, bob, isEvent(proto.EventAuthenticated))
	send(t, ctx, bob, proto.InboundTypeJoinRoom, proto.RoomData{Room: "general"})
	readUntil(t, ctx, bob, presenceIncludes("general", bobID))

	// skips hello entirely and claims to be bob
	anon := env.dial(t, ctx, "")
	send(t, ctx, anon, proto.InboundTypeJoinRoom, proto.RoomData{Room: "general"})
	send(t, ctx, anon, proto.InboundTypeSendMessage, proto.SendMessageData{Room: "general", Content: "spoofed", SenderID: bobID})
	readUntil(t, ctx, anon, isError(core.ErrCodeInvalidIdentity))
	send(t, ctx, anon, proto.InboundTypeTyping, proto.TypingData{Room: "general", SenderID: bobID})
	readUntil(t, ctx, anon, isError(core.ErrCodeInvalidIdentity))

	// bob's own message is the first chat frame anon sees
	send(t, ctx, bob, proto.InboundTypeSendMessage, proto.SendMessageData{Room: "general", Content: "real"})
	got, skipped := readUntil(t, ctx, anon, isEvent(proto.EventReceiveMessage))
	var msg proto.MessagePayload
	if err := json.Unmarshal(got.Data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Content != "real" || msg.SenderID != bobID {
		t.Fatalf("unexpected message: %+v", msg)
	}
	for _, f := range skipped {
		if f.Event == proto.EventUserTyping {
			t.Fatalf("spoofed typing was broadcast")
		}
	}

	history, err := env.store.ListMessages(ctx, "general", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(history) != 1 || history[0].Content != "real" {
		t.Fatalf("spoofed message was stored: %+v", history)
	}
}

func TestWebSocketInvalidUpgradeToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.JWTSecret = "testsecret" })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + env.ts.URL[len("http"):] + "/ws?token=garbage"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 response, got %v", resp)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "")

	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "alice", Protocol: proto.ProtocolVersion + 1})
	f := readFrame(t, ctx, conn)
	if f.Type != proto.OutboundTypeError || f.Error == nil || f.Error.Code != ErrCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", f)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "")
	for range 3 {
		send(t, ctx, conn, "dance", nil)
	}

	readUntil(t, ctx, conn, isError(core.ErrCodeRateLimited))
}

func TestWebSocketLogoutClosesConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "")
	bob := env.dial(t, ctx, "")
	helloAndJoin(t, ctx, bob, "bob", "general")
	helloAndJoin(t, ctx, alice, "alice", "general")

	send(t, ctx, alice, proto.InboundTypeLogout, nil)

	left, _ := readUntil(t, ctx, bob, isEvent(proto.EventUserLeft))
	var ev proto.UserEventPayload
	if err := json.Unmarshal(left.Data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.User != "alice" || ev.Room != "general" {
		t.Fatalf("unexpected user_left: %+v", ev)
	}

	for {
		_, _, err := alice.Read(ctx)
		if err == nil {
			continue
		}
		if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("connection not closed after logout")
			}
			t.Fatalf("expected normal closure, got %v", err)
		}
		break
	}
}
