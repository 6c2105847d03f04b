package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// UserHandlers lists the users a client can open a direct conversation with.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(users store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: users,
		log:   logger,
	}
}

// UserResponse represents a user in API responses. Password hashes and guest
// session ids never leave the server.
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Guest     bool   `json:"guest"`
	CreatedAt string `json:"created_at"`
}

func userToResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Guest:     u.IsGuest,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// ListUsers returns every known user except the caller.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	self := currentUser(c)
	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		// don't offer a conversation with yourself
		if u.ID == self {
			continue
		}
		response = append(response, userToResponse(u))
	}

	c.JSON(http.StatusOK, response)
}

// GetUser returns one user.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	id := c.Param("id")
	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", id).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, userToResponse(user))
}
