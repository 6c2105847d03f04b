package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// StatsHandlers exposes relay counters.
type StatsHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

func NewStatsHandlers(hub *core.Hub, logger *zerolog.Logger) *StatsHandlers {
	return &StatsHandlers{hub: hub, log: logger}
}

// Stats handles GET /api/stats.
func (h *StatsHandlers) Stats(c *gin.Context) {
	st, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to read hub stats")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "relay unavailable"})
		return
	}
	c.JSON(http.StatusOK, st)
}
