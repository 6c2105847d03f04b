package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// NewServer builds the HTTP server: the websocket relay endpoint plus the
// REST routes. st may be nil, in which case only the relay, health and
// stats routes are mounted.
//
// /ws is served by the mux directly; gin's response writer refuses to
// hijack once the handshake headers are written.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := router.Group("/api")

	stats := NewStatsHandlers(hub, logger)
	api.GET("/stats", stats.Stats)

	requireToken := cfg.JWTSecret != ""
	authed := api.Group("")
	authed.Use(AuthMiddleware(authService, requireToken, logger))

	rooms := NewRoomHandlers(hub, st, logger)
	authed.GET("/rooms/:id/presence", rooms.Presence)

	if st != nil {
		identities := NewAuthHandlers(authService, cfg.JWTTTL, logger)
		api.POST("/register", identities.Register)
		api.POST("/login", identities.Login)
		api.POST("/guest", identities.Guest)

		authed.GET("/rooms", rooms.ListRooms)
		authed.POST("/rooms", rooms.CreateRoom)
		authed.PUT("/rooms/:id", rooms.UpdateRoom)
		authed.DELETE("/rooms/:id", rooms.DeleteRoom)
		authed.GET("/rooms/:id/messages", rooms.History)

		users := NewUserHandlers(st, logger)
		authed.GET("/users", users.ListUsers)
		authed.GET("/users/:id", users.GetUser)

		direct := NewDirectHandlers(st, logger)
		authed.GET("/direct/:userId/messages", direct.History)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
