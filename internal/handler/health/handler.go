package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/repository"
)

const pingTimeout = 3 * time.Second

// Handler reports liveness and, for readiness, pings every registered
// dependency (booking store, broker).
type Handler struct {
	checks map[string]repository.Pinger
}

func NewHandler(checks map[string]repository.Pinger) *Handler {
	if checks == nil {
		checks = map[string]repository.Pinger{}
	}
	return &Handler{checks: checks}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, metrics gin.HandlerFunc) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
		if metrics != nil {
			health.GET("/metrics", metrics)
		}
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(gin.H, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = gin.H{"status": "DOWN", "reason": err.Error()}
			continue
		}
		results[name] = gin.H{"status": "UP"}
	}

	overall := "UP"
	if status != http.StatusOK {
		overall = "DOWN"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
