package core

import (
	"fmt"
	"strings"
)

// dispatch validates one inbound command and applies it. A panic inside a
// handler is contained here so other connections keep their state.
func (h *Hub) dispatch(c *Client, cmd *Command) {
	if cur, ok := h.registry.Get(c.ID); !ok || cur != c || cmd == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Interface("panic", r).
				Str("client_id", c.ID).
				Stringer("command", cmd.Kind).
				Msg("command handler panicked")
			h.sendError(c, coreError(ErrCodeInternal, "internal error"))
		}
	}()

	var err error
	switch cmd.Kind {
	case CommandAuthenticate:
		err = h.handleAuthenticate(c, cmd)
	case CommandJoinRoom:
		err = h.handleJoinRoom(c, cmd)
	case CommandLeaveRoom:
		err = h.handleLeaveRoom(c, cmd)
	case CommandSendRoomMessage:
		err = h.handleSendRoomMessage(c, cmd)
	case CommandJoinDirect:
		err = h.handleJoinDirect(c, cmd)
	case CommandSendDirectMessage:
		err = h.handleSendDirectMessage(c, cmd)
	case CommandTyping:
		err = h.handleTyping(c, cmd)
	case CommandStopTyping:
		err = h.handleStopTyping(c, cmd)
	case CommandLogout:
		h.drop(c)
	default:
		err = coreError(ErrCodeInvalidMessage, "unknown command")
	}

	if err != nil {
		h.log.Debug().Err(err).Str("client_id", c.ID).Stringer("command", cmd.Kind).Msg("command rejected")
		h.sendError(c, toCoreError(err))
	}
}

func (h *Hub) handleAuthenticate(c *Client, cmd *Command) error {
	rooms := c.roomList()
	before := make(map[string][]string, len(rooms))
	for _, room := range rooms {
		before[room] = h.presence.ActiveUsers(room)
	}

	if err := h.registry.Authenticate(c.ID, cmd.Identity); err != nil {
		return err
	}
	h.log.Debug().Str("client_id", c.ID).Str("identity", c.identity).Msg("client authenticated")
	h.deliver(c, &Event{Kind: EventAuthenticated, User: c.identity})

	for _, room := range rooms {
		h.announcePresence(room, before[room])
	}
	return nil
}

func (h *Hub) handleJoinRoom(c *Client, cmd *Command) error {
	room := strings.TrimSpace(cmd.Room)
	if room == "" {
		return coreError(ErrCodeBadRequest, "room is required")
	}
	if IsDirectRoom(room) {
		return coreError(ErrCodeBadRequest, "direct rooms are joined with join_direct")
	}
	h.join(room, c)
	return nil
}

func (h *Hub) handleLeaveRoom(c *Client, cmd *Command) error {
	room := strings.TrimSpace(cmd.Room)
	if room == "" {
		return coreError(ErrCodeBadRequest, "room is required")
	}
	h.leave(room, c)
	return nil
}

func (h *Hub) handleJoinDirect(c *Client, cmd *Command) error {
	sender, err := h.resolveSender(c, cmd.SenderID)
	if err != nil {
		return err
	}
	receiver, err := directReceiver(cmd.ReceiverID)
	if err != nil {
		return err
	}

	targets := []*Client{c}
	for _, rc := range h.registry.ConnectionsOf(receiver) {
		if rc != c {
			targets = append(targets, rc)
		}
	}
	h.join(DirectRoomID(sender, receiver), targets...)
	return nil
}

func (h *Hub) handleSendRoomMessage(c *Client, cmd *Command) error {
	content := strings.TrimSpace(cmd.Message.Content)
	if content == "" {
		return ErrEmptyContent
	}
	room := strings.TrimSpace(cmd.Room)
	if room == "" {
		room = strings.TrimSpace(cmd.Message.Room)
	}
	if room == "" {
		return coreError(ErrCodeBadRequest, "room is required")
	}
	if IsDirectRoom(room) {
		return coreError(ErrCodeBadRequest, "direct messages are sent with send_direct_message")
	}
	sender, err := h.resolveSender(c, firstNonEmpty(cmd.SenderID, cmd.Message.SenderID))
	if err != nil {
		return err
	}

	msg := cmd.Message
	msg.Room = room
	msg.Content = content
	msg.SenderID = sender
	msg.ReceiverID = ""
	msg.ID = ""
	h.enqueue(c, &persistJob{kind: CommandSendRoomMessage, msg: msg})
	return nil
}

func (h *Hub) handleSendDirectMessage(c *Client, cmd *Command) error {
	content := strings.TrimSpace(cmd.Message.Content)
	if content == "" {
		return ErrEmptyContent
	}
	sender, err := h.resolveSender(c, firstNonEmpty(cmd.SenderID, cmd.Message.SenderID))
	if err != nil {
		return err
	}
	receiver, err := directReceiver(firstNonEmpty(cmd.ReceiverID, cmd.Message.ReceiverID))
	if err != nil {
		return err
	}

	msg := cmd.Message
	msg.Content = content
	msg.SenderID = sender
	msg.ReceiverID = receiver
	msg.Room = DirectRoomID(sender, receiver)
	// A message that already carries an id was stored by the client before sending.
	h.enqueue(c, &persistJob{kind: CommandSendDirectMessage, msg: msg, stored: msg.ID != ""})
	return nil
}

func (h *Hub) handleTyping(c *Client, cmd *Command) error {
	room, user, err := h.typingTarget(c, cmd)
	if err != nil {
		return err
	}
	if h.typing.Start(room, user) {
		h.broadcast(room, &Event{Kind: EventUserTyping, Room: room, User: user, Users: h.typing.Users(room)}, "")
	}
	return nil
}

func (h *Hub) handleStopTyping(c *Client, cmd *Command) error {
	room, user, err := h.typingTarget(c, cmd)
	if err != nil {
		return err
	}
	h.stopTyping(room, user)
	return nil
}

func (h *Hub) handleTypingExpiry(exp typingExpiry) {
	if !h.typing.Expire(exp.key, exp.gen) {
		return
	}
	room := exp.key.room
	h.broadcast(room, &Event{Kind: EventUserStopTyping, Room: room, User: exp.key.user, Users: h.typing.Users(room)}, "")
}

func (h *Hub) stopTyping(room, user string) {
	if h.typing.Stop(room, user) {
		h.broadcast(room, &Event{Kind: EventUserStopTyping, Room: room, User: user, Users: h.typing.Users(room)}, "")
	}
}

// typingTarget resolves the room a typing signal applies to: the named room
// if given, otherwise the direct room with the receiver.
func (h *Hub) typingTarget(c *Client, cmd *Command) (string, string, error) {
	user, err := h.resolveSender(c, cmd.SenderID)
	if err != nil {
		return "", "", err
	}
	room := strings.TrimSpace(cmd.Room)
	if room == "" && strings.TrimSpace(cmd.ReceiverID) != "" {
		receiver, err := directReceiver(cmd.ReceiverID)
		if err != nil {
			return "", "", err
		}
		room = DirectRoomID(user, receiver)
	}
	if room == "" {
		return "", "", coreError(ErrCodeBadRequest, "room or receiverId is required")
	}
	return room, user, nil
}

// join adds clients to room and announces the presence change once.
func (h *Hub) join(room string, clients ...*Client) {
	before := h.presence.ActiveUsers(room)
	changed := false
	for _, c := range clients {
		if h.members.Join(room, c.ID) {
			c.rooms[room] = struct{}{}
			changed = true
		}
	}
	if !changed {
		return
	}
	h.log.Debug().Str("room", room).Int("members", len(h.members.MembersOf(room))).Msg("room joined")
	h.announcePresence(room, before)
}

// leave removes c from room; a no-op when c is not a member.
func (h *Hub) leave(room string, c *Client) {
	before := h.presence.ActiveUsers(room)
	if !h.members.Leave(room, c.ID) {
		return
	}
	delete(c.rooms, room)
	h.announcePresence(room, before)

	if c.identity != "" && !h.presence.Has(room, c.identity) {
		h.stopTyping(room, c.identity)
	}
}

// announcePresence recomputes the active users of room and tells every
// current member, with join/leave announcements for identity-level changes.
func (h *Hub) announcePresence(room string, before []string) {
	after := h.presence.ActiveUsers(room)
	joined, left := diffUsers(before, after)
	for _, u := range joined {
		h.broadcast(room, &Event{Kind: EventUserJoined, Room: room, User: u}, "")
	}
	for _, u := range left {
		h.broadcast(room, &Event{Kind: EventUserLeft, Room: room, User: u}, "")
	}
	h.broadcast(room, &Event{Kind: EventPresence, Room: room, Users: after}, "")
}

// resolveSender checks a claimed sender against the connection identity.
// Anonymous connections fall back to the claim unless identities are required.
func (h *Hub) resolveSender(c *Client, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	if c.identity != "" {
		if claimed != "" && claimed != c.identity {
			return "", fmt.Errorf("sender %q is not %q: %w", claimed, c.identity, ErrIdentityMismatch)
		}
		return c.identity, nil
	}
	if h.cfg.RequireIdentity {
		return "", fmt.Errorf("connection is not authenticated: %w", ErrInvalidIdentity)
	}
	if err := ValidateIdentity(claimed); err != nil {
		return "", err
	}
	return claimed, nil
}

func directReceiver(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := ValidateIdentity(id); err != nil {
		return "", &CoreError{Code: ErrCodeBadRequest, Message: "receiverId is invalid", err: err}
	}
	return id, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
