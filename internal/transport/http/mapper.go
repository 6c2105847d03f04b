package http

import (
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// ErrCodeUnsupportedVersion is sent when hello names a protocol this server does not speak.
const ErrCodeUnsupportedVersion = "unsupported_version"

// helloResolver turns a hello frame into the identity to bind.
type helloResolver struct {
	tokens       TokenValidator
	requireToken bool
}

func (r helloResolver) identity(hello proto.HelloData) (string, *proto.Error) {
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return "", &proto.Error{Code: ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}
	}
	if hello.Token != "" {
		claims, err := r.tokens.ValidateToken(hello.Token)
		if err != nil {
			return "", &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
		}
		return claims.UserID, nil
	}
	if r.requireToken {
		return "", &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"}
	}
	return hello.User, nil
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func inboundToCommand(inbound proto.Inbound, hello helloResolver) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeHello:
		var data proto.HelloData
		if err := proto.DecodeData(&inbound, &data); err != nil {
			return nil, badRequest(err.Error())
		}
		identity, perr := hello.identity(data)
		if perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandAuthenticate, Identity: identity}, nil

	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if err := proto.DecodeData(&inbound, &data); err != nil {
			return nil, badRequest(err.Error())
		}
		if strings.TrimSpace(data.Room) == "" {
			return nil, badRequest("room is required")
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Room: data.Room}, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := proto.DecodeData(&inbound, &data); err != nil {
			return nil, badRequest(err.Error())
		}
		return &core.Command{
			Kind:     core.CommandSendRoomMessage,
			Room:     data.Room,
			SenderID: data.SenderID,
			Message: core.Message{
				Room:       data.Room,
				SenderID:   data.SenderID,
				SenderName: data.SenderName,
				Content:    data.Content,
			},
		}, nil

	case proto.InboundTypeJoinDirect:
		var data proto.JoinDirectData
		if err := proto.DecodeData(&inbound, &data); err != nil {
			return nil, badRequest(err.Error())
		}
		return &core.Command{
			Kind:       core.CommandJoinDirect,
			SenderID:   data.SenderID,
			ReceiverID: data.ReceiverID,
		}, nil

	case proto.InboundTypeSendDirectMessage:
		var data proto.SendDirectMessageData
		if err := proto.DecodeData(&inbound, &data); err != nil {
			return nil, badRequest(err.Error())
		}
		msg := core.Message{
			ID:         data.ID,
			SenderID:   data.SenderID,
			ReceiverID: data.ReceiverID,
			Content:    data.Content,
		}
		if data.CreatedAt != "" {
			ts, err := time.Parse(time.RFC3339Nano, data.CreatedAt)
			if err != nil {
				return nil, badRequest("createdAt must be RFC 3339")
			}
			msg.CreatedAt = ts.UTC()
		}
		return &core.Command{
			Kind:       core.CommandSendDirectMessage,
			SenderID:   data.SenderID,
			ReceiverID: data.ReceiverID,
			Message:    msg,
		}, nil

	case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var data proto.TypingData
		if err := proto.DecodeData(&inbound, &data); err != nil {
			return nil, badRequest(err.Error())
		}
		kind := core.CommandTyping
		if inbound.Type == proto.InboundTypeStopTyping || (data.IsTyping != nil && !*data.IsTyping) {
			kind = core.CommandStopTyping
		}
		sender := data.SenderID
		if sender == "" {
			sender = data.User
		}
		return &core.Command{
			Kind:       kind,
			Room:       data.Room,
			SenderID:   sender,
			ReceiverID: data.ReceiverID,
		}, nil

	case proto.InboundTypeLogout:
		return &core.Command{Kind: core.CommandLogout}, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		m := event.Message
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data: proto.MessagePayload{
				ID:         m.ID,
				Room:       m.Room,
				RoomName:   m.RoomName,
				Content:    m.Content,
				SenderID:   m.SenderID,
				SenderName: m.SenderName,
				CreatedAt:  formatTime(m.CreatedAt),
			},
		}
	case core.EventDirectMessage:
		m := event.Message
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveDirectMessage,
			Data: proto.DirectMessagePayload{
				ID:         m.ID,
				Room:       m.Room,
				Content:    m.Content,
				SenderID:   m.SenderID,
				SenderName: m.SenderName,
				ReceiverID: m.ReceiverID,
				CreatedAt:  formatTime(m.CreatedAt),
			},
		}
	case core.EventUserTyping, core.EventUserStopTyping:
		name := proto.EventUserTyping
		if event.Kind == core.EventUserStopTyping {
			name = proto.EventUserStopTyping
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.TypingPayload{
				Room:     event.Room,
				SenderID: event.User,
				IsTyping: event.Kind == core.EventUserTyping,
				Users:    nonNil(event.Users),
			},
		}
	case core.EventUserJoined, core.EventUserLeft:
		name := proto.EventUserJoined
		if event.Kind == core.EventUserLeft {
			name = proto.EventUserLeft
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  proto.UserEventPayload{Room: event.Room, User: event.User},
		}
	case core.EventPresence:
		users := nonNil(event.Users)
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresence,
			Data:  proto.PresencePayload{Room: event.Room, Users: users, Count: len(users)},
		}
	case core.EventAuthenticated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAuthenticated,
			Data:  proto.AuthenticatedPayload{Identity: event.User},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
