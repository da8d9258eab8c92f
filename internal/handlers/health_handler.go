package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type CacheStatus interface {
	IsAvailable() bool
}

type HealthHandler struct {
	db    Pinger
	cache CacheStatus
}

func NewHealthHandler(db Pinger, cache CacheStatus) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Health reports process and dependency status. A failed database ping
// degrades the status but still answers 200.
func (h *HealthHandler) Health(c *gin.Context) {
	database := "connected"
	status := "healthy"
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		database = "unreachable"
		status = "degraded"
	}

	redis := "local_cache_only"
	if h.cache.IsAvailable() {
		redis = "connected"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"services": map[string]string{
			"database": database,
			"redis":    redis,
			"cache":    "active",
		},
	})
}
