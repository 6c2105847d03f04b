package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// TokenValidator checks identity tokens. *auth.Service implements it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub          *core.Hub
	tokens       TokenValidator
	requireToken bool
	readLimit    int64
	eventBuffer  int
	rateLimit    int
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, tokens TokenValidator, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:          hub,
		tokens:       tokens,
		requireToken: cfg.JWTSecret != "",
		readLimit:    cfg.MaxMessageBytes,
		eventBuffer:  cfg.EventBuffer,
		rateLimit:    cfg.RateLimitPerMinute,
		log:          logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// A token on the upgrade URL authenticates the connection before any command.
	var identity string
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.log.Debug().Err(err).Msg("ws upgrade with invalid token")
			stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
			return
		}
		identity = claims.UserID
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	client := core.NewClient("", h.eventBuffer)
	log := h.log.With().Str("client_id", client.ID).Logger()

	ready := proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventReady,
		Data: proto.ReadyPayload{
			ConnectionID: client.ID,
			Identity:     identity,
			Protocol:     proto.ProtocolVersion,
		},
	}
	if err := wsjson.Write(ctx, conn, ready); err != nil {
		log.Debug().Err(err).Msg("write ready")
		return
	}

	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	if identity != "" {
		client.Commands <- &core.Command{Kind: core.CommandAuthenticate, Identity: identity}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &log)
	}()

	// Close before cancelling so the peer gets a close frame instead of a
	// torn connection; Close also unblocks the loop still running.
	err = <-errCh
	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		log.Warn().Err(err).Msg("ws connection closed with error")
	}
	conn.Close(status, reason)
	cancel()
	<-errCh
}

// closeStatus derives the close frame for the error that ended a connection.
func closeStatus(err error) (websocket.StatusCode, string) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}
	switch s := websocket.CloseStatus(err); s {
	case -1:
		return websocket.StatusInternalError, closeReason(err)
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return s, "closing"
	default:
		return s, closeReason(err)
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.rateLimit, time.Minute)
	hello := helloResolver{tokens: h.tokens, requireToken: h.requireToken}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			log.Debug().Msg("inbound frame rate limited")
			if err := writeError(ctx, conn, &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages"}); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			if err := writeError(ctx, conn, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "malformed json"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound, hello)
		if protoErr != nil {
			log.Debug().Str("type", inbound.Type).Str("code", protoErr.Code).Msg("inbound rejected")
			if err := writeError(ctx, conn, protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				log.Debug().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, e *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: e})
}

// closeReason keeps the close frame within the 123 byte limit.
func closeReason(err error) string {
	reason := err.Error()
	if len(reason) > 120 {
		reason = reason[:120]
	}
	return reason
}
