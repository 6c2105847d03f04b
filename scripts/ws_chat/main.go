// Command ws_chat is an interactive terminal client for the relay.
//
// Lines are sent to the current room. Commands:
//
//	/join ROOM      switch room
//	/dm USER TEXT   send a direct message
//	/typing         signal typing in the current room
//	/quit           log out
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

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
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "identity to announce when no token is given")
	token := flag.String("token", "", "JWT issued by /api/login or /api/guest")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	target := *addr
	if *token != "" {
		target += "?token=" + url.QueryEscape(*token)
	}
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &chat{conn: conn, room: *room}
	if *token == "" {
		if err := c.send(ctx, proto.InboundTypeHello, proto.HelloData{User: *user, Protocol: proto.ProtocolVersion}); err != nil {
			return err
		}
	}
	if err := c.send(ctx, proto.InboundTypeJoinRoom, proto.RoomData{Room: *room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. /join, /dm, /typing, /quit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	c.inputLoop(ctx)
	return nil
}

type chat struct {
	conn *websocket.Conn
	room string
}

func (c *chat) send(ctx context.Context, typ string, data any) error {
	in := proto.Inbound{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		in.Data = raw
	}
	if err := wsjson.Write(ctx, c.conn, in); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func (c *chat) inputLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			done, err := c.handleLine(ctx, strings.TrimSpace(line))
			if err != nil {
				log.Printf("%v", err)
				return
			}
			if done {
				return
			}
		}
	}
}

func (c *chat) handleLine(ctx context.Context, line string) (bool, error) {
	switch {
	case line == "":
		return false, nil
	case line == "/quit":
		return true, c.send(ctx, proto.InboundTypeLogout, nil)
	case line == "/typing":
		return false, c.send(ctx, proto.InboundTypeTyping, proto.TypingData{Room: c.room})
	case strings.HasPrefix(line, "/join "):
		next := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
		if err := c.send(ctx, proto.InboundTypeLeaveRoom, proto.RoomData{Room: c.room}); err != nil {
			return false, err
		}
		c.room = next
		return false, c.send(ctx, proto.InboundTypeJoinRoom, proto.RoomData{Room: next})
	case strings.HasPrefix(line, "/dm "):
		to, text, ok := strings.Cut(strings.TrimPrefix(line, "/dm "), " ")
		if !ok {
			fmt.Println("usage: /dm USER TEXT")
			return false, nil
		}
		if err := c.send(ctx, proto.InboundTypeJoinDirect, proto.JoinDirectData{ReceiverID: to}); err != nil {
			return false, err
		}
		return false, c.send(ctx, proto.InboundTypeSendDirectMessage, proto.SendDirectMessageData{ReceiverID: to, Content: text})
	default:
		return false, c.send(ctx, proto.InboundTypeSendMessage, proto.SendMessageData{Room: c.room, Content: line})
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		printFrame(f)
	}
}

func printFrame(f frame) {
	if f.Type == proto.OutboundTypeError && f.Error != nil {
		fmt.Printf("! %s: %s\n", f.Error.Code, f.Error.Msg)
		return
	}

	switch f.Event {
	case proto.EventReceiveMessage:
		var m proto.MessagePayload
		if err := json.Unmarshal(f.Data, &m); err == nil {
			fmt.Printf("[%s] %s: %s\n", m.Room, displayName(m.SenderName, m.SenderID), m.Content)
			return
		}
	case proto.EventReceiveDirectMessage:
		var m proto.DirectMessagePayload
		if err := json.Unmarshal(f.Data, &m); err == nil {
			fmt.Printf("[dm] %s -> %s: %s\n", displayName(m.SenderName, m.SenderID), m.ReceiverID, m.Content)
			return
		}
	case proto.EventUserJoined, proto.EventUserLeft:
		var u proto.UserEventPayload
		if err := json.Unmarshal(f.Data, &u); err == nil {
			verb := "joined"
			if f.Event == proto.EventUserLeft {
				verb = "left"
			}
			fmt.Printf("[room %s] %s %s\n", u.Room, u.User, verb)
			return
		}
	case proto.EventUserTyping:
		var t proto.TypingPayload
		if err := json.Unmarshal(f.Data, &t); err == nil {
			fmt.Printf("[room %s] %s is typing\n", t.Room, t.SenderID)
			return
		}
	case proto.EventPresence, proto.EventUserStopTyping:
		return
	}
	fmt.Printf("event=%s data=%s\n", f.Event, f.Data)
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
