package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type persistJob struct {
	kind   CommandKind
	msg    Message
	stored bool
}

type persistResult struct {
	client *Client
	kind   CommandKind
	msg    Message
	err    error
}

// enqueue queues a message behind any earlier sends of the same connection.
func (h *Hub) enqueue(c *Client, job *persistJob) {
	c.pending = append(c.pending, job)
	h.startPersist(c)
}

// startPersist runs the next queued job of c. At most one gateway call per
// connection is in flight, so a connection's messages are broadcast in the
// order it sent them.
func (h *Hub) startPersist(c *Client) {
	if c.inFlight || len(c.pending) == 0 {
		return
	}
	job := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	c.inFlight = true

	ctx := h.ctx
	go func() {
		msg, err := h.persist(ctx, job)
		select {
		case h.results <- persistResult{client: c, kind: job.kind, msg: msg, err: err}:
		case <-h.done:
		}
	}()
}

// persist stores the message through the gateway. It runs on its own
// goroutine and must not touch hub state. A panicking gateway is reported
// as a persistence failure to the sender only.
func (h *Hub) persist(ctx context.Context, job *persistJob) (out Message, err error) {
	msg := job.msg
	defer func() {
		if r := recover(); r != nil {
			out, err = job.msg, fmt.Errorf("%w: panic: %v", ErrPersistence, r)
		}
	}()
	if job.stored || h.gateway == nil {
		return stamp(msg), nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.PersistTimeout)
	defer cancel()

	switch job.kind {
	case CommandSendRoomMessage:
		rec, err := h.gateway.CreateMessage(ctx, msg.Content, msg.SenderID, msg.Room)
		if err != nil {
			return msg, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if rec != nil {
			msg.ID = rec.ID
			msg.CreatedAt = rec.CreatedAt
		}
		// ad-hoc rooms have no record; only stored rooms carry a name
		if r, err := h.gateway.FindRoomByID(ctx, msg.Room); err == nil && r != nil {
			msg.RoomName = r.Name
		}
	case CommandSendDirectMessage:
		rec, err := h.gateway.CreateDirectMessage(ctx, msg.Content, msg.SenderID, msg.ReceiverID)
		if err != nil {
			return msg, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if rec != nil {
			msg.ID = rec.ID
			msg.CreatedAt = rec.CreatedAt
		}
	default:
		return msg, fmt.Errorf("%w: unsupported command %s", ErrPersistence, job.kind)
	}

	if msg.SenderName == "" {
		if u, err := h.gateway.FindUserByID(ctx, msg.SenderID); err == nil && u != nil {
			msg.SenderName = u.Username
		}
	}
	return stamp(msg), nil
}

func (h *Hub) handlePersisted(res persistResult) {
	c := res.client
	c.inFlight = false

	if res.err != nil {
		h.failed++
		h.log.Warn().Err(res.err).Str("client_id", c.ID).Str("room", res.msg.Room).Msg("message not stored, broadcast skipped")
		h.sendError(c, &CoreError{Code: ErrCodePersistence, Message: ErrPersistence.Error(), err: res.err})
	} else {
		h.relayed++
		kind := EventRoomMessage
		if res.kind == CommandSendDirectMessage {
			kind = EventDirectMessage
		}
		h.broadcast(res.msg.Room, &Event{Kind: kind, Room: res.msg.Room, User: res.msg.SenderID, Message: res.msg}, c.ID)
	}

	if !c.closed {
		h.startPersist(c)
	}
}

// stamp fills id and timestamp when storage did not.
func stamp(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return msg
}
