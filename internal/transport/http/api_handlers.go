package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
)

const guestCookie = "guest_session"

// AuthHandlers issues relay identities: registered users and guests both end up
// with a token whose user id is the identity bound by the websocket hello.
type AuthHandlers struct {
	authService *auth.Service
	guestTTL    time.Duration
	log         *zerolog.Logger
}

// NewAuthHandlers creates the handlers for /api/register, /api/login and /api/guest.
func NewAuthHandlers(authService *auth.Service, guestTTL time.Duration, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		guestTTL:    guestTTL,
		log:         logger,
	}
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required,max=32"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries the issued token and the identity it resolves to.
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Guest    bool   `json:"guest"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register handles POST /api/register.
func (h *AuthHandlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if !h.bind(c, &req) {
		return
	}
	id, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err, req.Username)
		return
	}
	h.issue(c, http.StatusCreated, id)
}

// Login handles POST /api/login.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if !h.bind(c, &req) {
		return
	}
	id, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err, req.Username)
		return
	}
	h.issue(c, http.StatusOK, id)
}

// Guest handles POST /api/guest. The session id is also set as a cookie so a
// browser client can show it back to the user.
func (h *AuthHandlers) Guest(c *gin.Context) {
	id, err := h.authService.CreateGuestUser(c.Request.Context())
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.SetCookie(guestCookie, id.SessionID, int(h.guestTTL.Seconds()), "/", "", false, true)
	h.issue(c, http.StatusOK, id)
}

func (h *AuthHandlers) bind(c *gin.Context, req *CredentialsRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("invalid auth request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *AuthHandlers) issue(c *gin.Context, status int, id *auth.Identity) {
	h.log.Info().Str("user_id", id.UserID).Bool("guest", id.Guest).Str("path", c.FullPath()).Msg("identity issued")
	c.JSON(status, AuthResponse{
		Token:    id.Token,
		UserID:   id.UserID,
		Username: id.Username,
		Guest:    id.Guest,
	})
}

func (h *AuthHandlers) fail(c *gin.Context, err error, username string) {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
	default:
		h.log.Error().Err(err).Str("username", username).Str("path", c.FullPath()).Msg("auth request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
