package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler answers liveness probes by pinging postgres and redis.
type HealthHandler struct {
	postgres Pinger
	redis    Pinger
	logger   zerolog.Logger
}

func NewHealthHandler(postgres, redis Pinger, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{postgres: postgres, redis: redis, logger: logger}
}

// Healthz returns 200 with per-dependency checks, or 503 with status
// "degraded" when either store is unreachable.
func (h *HealthHandler) Healthz(c *gin.Context) {
	checks := gin.H{"postgres": "ok", "redis": "ok"}
	healthy := true

	if err := h.postgres.Ping(c.Request.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("healthz postgres ping failed")
		checks["postgres"] = "down"
		healthy = false
	}
	if err := h.redis.Ping(c.Request.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("healthz redis ping failed")
		checks["redis"] = "down"
		healthy = false
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
