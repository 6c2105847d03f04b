package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// DirectHandlers serves stored direct message history.
type DirectHandlers struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewDirectHandlers creates a new direct handlers instance.
func NewDirectHandlers(st store.MessageStore, logger *zerolog.Logger) *DirectHandlers {
	return &DirectHandlers{
		store: st,
		log:   logger,
	}
}

// DirectMessageResponse is one stored direct message.
type DirectMessageResponse struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

// History returns the conversation between the caller and another user.
// GET /api/direct/:userId/messages?limit=N
func (h *DirectHandlers) History(c *gin.Context) {
	uid := currentUser(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	other := c.Param("userId")
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	msgs, err := h.store.ListDirectMessages(c.Request.Context(), uid, other, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Str("peer_id", other).Msg("failed to load direct history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]DirectMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, DirectMessageResponse{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, response)
}
