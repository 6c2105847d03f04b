// Command ws_smoke checks a running relay end to end: a listener and a
// sender join the same room and the listener must receive the message.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	listener, err := connect(ctx, *addr, "smoke-listener", *room)
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	defer listener.Close(websocket.StatusNormalClosure, "bye")

	sender, err := connect(ctx, *addr, "smoke-sender", *room)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, sender, proto.InboundTypeSendMessage, proto.SendMessageData{Room: *room, Content: *text}); err != nil {
		return err
	}

	for {
		f, err := read(ctx, listener)
		if err != nil {
			return err
		}
		if f.Event != proto.EventReceiveMessage {
			continue
		}
		var msg proto.MessagePayload
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		fmt.Printf("ok: room=%s sender=%s id=%s content=%q\n", msg.Room, msg.SenderID, msg.ID, msg.Content)
		return nil
	}
}

// connect dials, says hello as user and waits until the join is confirmed.
func connect(ctx context.Context, addr, user, room string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := send(ctx, conn, proto.InboundTypeHello, proto.HelloData{User: user, Protocol: proto.ProtocolVersion}); err != nil {
		return nil, err
	}
	if err := send(ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{Room: room}); err != nil {
		return nil, err
	}
	for {
		f, err := read(ctx, conn)
		if err != nil {
			return nil, err
		}
		if f.Event == proto.EventPresence {
			fmt.Printf("%s joined %s: %s\n", user, room, f.Data)
			return conn, nil
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func read(ctx context.Context, conn *websocket.Conn) (frame, error) {
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		return f, fmt.Errorf("read: %w", err)
	}
	if f.Type == proto.OutboundTypeError && f.Error != nil {
		return f, fmt.Errorf("server error %s: %s", f.Error.Code, f.Error.Msg)
	}
	return f, nil
}
