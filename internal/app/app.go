package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	wclog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

// App wires together storage, the relay hub and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	var (
		st      store.Store
		gateway core.Gateway
	)
	if cfg.DatabasePath != "" {
		sqliteStore, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		st = sqliteStore
		gateway = store.NewGateway(sqliteStore)
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
	} else {
		logger.Warn().Msg("no database_path configured, messages are relayed without storage")
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		var err error
		if secret, err = auth.RandomSecret(); err != nil {
			closeStore(st, logger)
			return nil, err
		}
		logger.Warn().Msg("jwt_secret is empty, using an ephemeral signing key; hello accepts plain user names")
	}
	jwtConfig := &auth.JWTConfig{
		Secret:   secret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	var users store.UserStore
	if st != nil {
		users = st
	}
	authService := auth.NewService(users, jwtConfig)

	hub := core.NewHub(gateway, core.HubConfig{
		TypingTimeout:   cfg.TypingTimeout,
		PersistTimeout:  cfg.PersistTimeout,
		RequireIdentity: cfg.JWTSecret != "",
	}, wclog.Component(logger, "hub"))
	server := transporthttp.NewServer(hub, authService, st, cfg, wclog.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the hub and the HTTP server and blocks until ctx is cancelled
// or one of them fails. The store is closed once both have stopped.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	closeStore(a.store, a.log)
}

func closeStore(st store.Store, logger *zerolog.Logger) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close store")
	} else {
		logger.Info().Msg("store closed")
	}
}
