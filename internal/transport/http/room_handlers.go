package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// RoomHandlers serves room metadata, history and live presence.
type RoomHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance. st may be nil when
// the relay runs without storage; only Presence is usable then.
func NewRoomHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=64"`
	Description string `json:"description" binding:"max=256"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AdminID     string `json:"admin_id"`
	CreatedAt   string `json:"created_at"`
}

// MessageResponse is one stored room message.
type MessageResponse struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// PresenceResponse lists who is live in a room right now.
type PresenceResponse struct {
	Room   string   `json:"room"`
	Users  []string `json:"users"`
	Typing []string `json:"typing"`
	Count  int      `json:"count"`
}

func roomToResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		AdminID:     room.AdminID,
		CreatedAt:   room.CreatedAt.Format(time.RFC3339),
	}
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid := currentUser(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || core.IsDirectRoom(name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name"})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), name, strings.TrimSpace(req.Description), uid)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_name", room.Name).Str("room_id", room.ID).Str("admin_id", uid).Msg("room created successfully")
	c.JSON(http.StatusCreated, roomToResponse(room))
}

// ListRooms handles listing rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomToResponse(room))
	}

	h.log.Debug().Int("room_count", len(rooms)).Msg("rooms listed successfully")
	c.JSON(http.StatusOK, response)
}

// UpdateRoom renames a room. Only its admin may do so.
// PUT /api/rooms/:id
func (h *RoomHandlers) UpdateRoom(c *gin.Context) {
	room, ok := h.adminRoom(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || core.IsDirectRoom(name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name"})
		return
	}

	updated, err := h.store.UpdateRoom(c.Request.Context(), room.ID, name, strings.TrimSpace(req.Description))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		default:
			h.log.Error().Err(err).Str("room_id", room.ID).Msg("failed to update room")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("room_id", updated.ID).Str("room_name", updated.Name).Msg("room updated")
	c.JSON(http.StatusOK, roomToResponse(updated))
}

// DeleteRoom removes a room and its history. Only its admin may do so.
// Connections still joined keep relaying under the same id.
// DELETE /api/rooms/:id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	room, ok := h.adminRoom(c)
	if !ok {
		return
	}

	if err := h.store.DeleteRoom(c.Request.Context(), room.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", room.ID).Msg("failed to delete room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", room.ID).Msg("room deleted")
	c.Status(http.StatusNoContent)
}

// adminRoom loads the :id room and checks the caller administers it,
// writing the error response when not.
func (h *RoomHandlers) adminRoom(c *gin.Context) (*store.Room, bool) {
	uid := currentUser(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil, false
	}

	room, err := h.store.GetRoomByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return nil, false
		}
		h.log.Error().Err(err).Str("room_id", c.Param("id")).Msg("failed to load room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	if room.AdminID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the room admin can change it"})
		return nil, false
	}
	return room, true
}

// History returns the latest messages of a room, oldest first.
// GET /api/rooms/:id/messages?limit=N
func (h *RoomHandlers) History(c *gin.Context) {
	roomID := c.Param("id")
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, MessageResponse{
			ID:        m.ID,
			RoomID:    m.RoomID,
			SenderID:  m.UserID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, response)
}

// Presence returns the live users of a room as seen by the relay.
// GET /api/rooms/:id/presence
func (h *RoomHandlers) Presence(c *gin.Context) {
	room := c.Param("id")
	ctx := c.Request.Context()

	users, err := h.hub.ActiveUsers(ctx, room)
	if err == nil {
		var typing []string
		typing, err = h.hub.TypingUsers(ctx, room)
		if err == nil {
			c.JSON(http.StatusOK, PresenceResponse{
				Room:   room,
				Users:  nonNil(users),
				Typing: nonNil(typing),
				Count:  len(users),
			})
			return
		}
	}

	if errors.Is(err, core.ErrHubStopped) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "relay stopped"})
		return
	}
	h.log.Error().Err(err).Str("room", room).Msg("failed to query presence")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// parseLimit reads ?limit and writes a 400 response when it is malformed.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		return 0, false
	}
	return min(limit, maxHistoryLimit), true
}
