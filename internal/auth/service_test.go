package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return NewService(st, testJWTConfig())
}

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	for _, name := range []string{"ab", " ab ", "dm:alice", "al ice"} {
		if _, err := svc.Register(ctx, name, "password123"); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("%q: expected ErrInvalidUsername, got %v", name, err)
		}
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_TrimsUsernameAndCreatesUser(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if id.Token == "" || id.UserID == "" || id.Username != "alice" || id.Guest {
		t.Fatalf("unexpected identity: %+v", id)
	}
	claims, err := svc.ValidateToken(id.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != id.UserID {
		t.Fatalf("token identity %q, want %q", claims.UserID, id.UserID)
	}

	// Should collide because the stored username is trimmed.
	if _, err := svc.Register(ctx, "alice", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	loggedIn, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.UserID != registered.UserID {
		t.Fatalf("login identity %q, registered identity %q", loggedIn.UserID, registered.UserID)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateGuestUser(t *testing.T) {
	svc := newTestAuthService(t)

	guest, err := svc.CreateGuestUser(context.Background())
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	sessionID := guest.SessionID
	if sessionID == "" || !guest.Guest {
		t.Fatalf("unexpected guest identity: %+v", guest)
	}

	claims, err := svc.ValidateToken(guest.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !claims.IsGuest || claims.Username != "guest_"+sessionID[:8] {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, "u-1", "alice", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	otherSecret := *cfg
	otherSecret.Secret = []byte("another-secret")
	otherAudience := *cfg
	otherAudience.Audience = "elsewhere"
	otherIssuer := *cfg
	otherIssuer.Issuer = "someone-else"

	expired := *cfg
	expired.TTL = -time.Minute
	expiredToken, err := GenerateToken(&expired, "u-1", "alice", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name  string
		cfg   *JWTConfig
		token string
	}{
		{"wrong secret", &otherSecret, token},
		{"wrong audience", &otherAudience, token},
		{"wrong issuer", &otherIssuer, token},
		{"expired", cfg, expiredToken},
		{"garbage", cfg, "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.cfg, tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("secret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := ComparePassword(hash, "secret-pass"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := ComparePassword(hash, "other-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := ComparePassword("", "secret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty hash should never match, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 73)); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword for long password, got %v", err)
	}
}
