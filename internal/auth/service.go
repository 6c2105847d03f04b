package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Identity is what a successful register, login or guest sign-in hands out:
// the token plus the relay identity it grants. UserID is the value a
// websocket hello with this token binds to the connection.
type Identity struct {
	Token     string
	UserID    string
	Username  string
	Guest     bool
	SessionID string
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service. userStore may be nil when
// the relay runs without storage; the service then only validates tokens.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and signs it in.
// Names with ':' are refused since identities end up in direct room keys.
func (s *Service) Register(ctx context.Context, username, password string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 || strings.ContainsAny(username, ": \t") {
		return nil, ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return nil, ErrInvalidPassword
	}

	// Check if user already exists
	existing, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil && existing != nil:
		return nil, ErrUserExists
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	// A concurrent register can still win the unique index
	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issue(user, "")
}

// Login validates credentials and signs the user in.
func (s *Service) Login(ctx context.Context, username, password string) (*Identity, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user, "")
}

// CreateGuestUser creates a temporary guest user and signs it in.
func (s *Service) CreateGuestUser(ctx context.Context) (*Identity, error) {
	// Generate random session ID
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	user, err := s.store.CreateGuestUser(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create guest user: %w", err)
	}

	return s.issue(user, sessionID)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) issue(user *store.User, sessionID string) (*Identity, error) {
	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, user.IsGuest)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Identity{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Guest:     user.IsGuest,
		SessionID: sessionID,
	}, nil
}

// generateSessionID generates a random session ID for guest users.
func generateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
