package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store store.Store
	auth  *auth.Service
}

// newTestEnv starts a hub backed by in-memory SQLite and serves the full router.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.TypingTimeout = 200 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	secret := cfg.JWTSecret
	if secret == "" {
		secret = "ephemeral-test-secret"
	}
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(secret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	disabledLogger := zerolog.New(nil)
	hub := core.NewHub(store.NewGateway(st), core.HubConfig{
		TypingTimeout:   cfg.TypingTimeout,
		PersistTimeout:  cfg.PersistTimeout,
		RequireIdentity: cfg.JWTSecret != "",
	}, &disabledLogger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	server := NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, auth: authService}
}

// register signs up name and returns its token and relay identity.
func (e *testEnv) register(t *testing.T, name string) (token, userID string) {
	t.Helper()
	id, err := e.auth.Register(context.Background(), name, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return id.Token, id.UserID
}

// frame is an outbound envelope with its data left raw.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, query string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws" + query
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	ready := readFrame(t, ctx, conn)
	if ready.Event != proto.EventReady {
		t.Fatalf("expected ready first, got %+v", ready)
	}
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	in := proto.Inbound{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s: %v", typ, err)
		}
		in.Data = raw
	}
	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

// readUntil skips frames until match returns true and returns the skipped ones too.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(frame) bool) (frame, []frame) {
	t.Helper()
	var skipped []frame
	for {
		f := readFrame(t, ctx, conn)
		if match(f) {
			return f, skipped
		}
		skipped = append(skipped, f)
	}
}

func isEvent(name string) func(frame) bool {
	return func(f frame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == name }
}

func isError(code string) func(frame) bool {
	return func(f frame) bool { return f.Type == proto.OutboundTypeError && f.Error != nil && f.Error.Code == code }
}

// presenceIncludes matches a presence frame for room listing user.
func presenceIncludes(room, user string) func(frame) bool {
	return func(f frame) bool {
		if f.Event != proto.EventPresence {
			return false
		}
		var p proto.PresencePayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.Room != room {
			return false
		}
		for _, u := range p.Users {
			if u == user {
				return true
			}
		}
		return false
	}
}

// helloAndJoin authenticates conn as user and waits until it is in room.
func helloAndJoin(t *testing.T, ctx context.Context, conn *websocket.Conn, user, room string) {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: user})
	readUntil(t, ctx, conn, isEvent(proto.EventAuthenticated))
	send(t, ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{Room: room})
	readUntil(t, ctx, conn, presenceIncludes(room, user))
}
