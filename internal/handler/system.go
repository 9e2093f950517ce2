package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/config"
	"github.com/aman-churiwal/edge-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handles system-related endpoints
type SystemHandler struct {
	store    Pinger
	database Pinger
	limiter  *ratelimit.Limiter
	config   *config.Config
	logger   *zap.Logger
	started  time.Time
}

// database may be nil when jobs are kept in memory.
func NewSystemHandler(cfg *config.Config, store, database Pinger, limiter *ratelimit.Limiter, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		store:    store,
		database: database,
		limiter:  limiter,
		config:   cfg,
		logger:   logger,
		started:  time.Now(),
	}
}

// Handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeHealthy := true
	if err := h.store.Ping(ctx); err != nil {
		storeHealthy = false
		h.logger.Warn("redis health check failed", zap.Error(err))
	}

	checks := gin.H{"redis": storeHealthy}
	dbHealthy := true
	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			dbHealthy = false
			h.logger.Warn("database health check failed", zap.Error(err))
		}
		checks["database"] = dbHealthy
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !storeHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "edge-gateway",
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// Handles GET /admin/status
func (h *SystemHandler) Status(c *gin.Context) {
	defaults := gin.H{}
	for scope, rule := range h.config.RateLimit.Defaults {
		defaults[scope] = gin.H{"limit": rule.Limit, "window": rule.Window.String()}
	}

	c.JSON(http.StatusOK, gin.H{
		"gateway":                    "running",
		"debug_bypass_rate_limiting": h.limiter.Bypassed(),
		"rate_limit": gin.H{
			"defaults":        defaults,
			"route_overrides": len(h.config.RateLimit.Routes),
			"store_timeout":   h.config.RateLimit.StoreTimeout.String(),
		},
		"cache": gin.H{
			"list_ttl":      h.config.Cache.ListTTL.String(),
			"detail_ttl":    h.config.Cache.DetailTTL.String(),
			"single_flight": h.config.Cache.SingleFlight,
		},
		"uptime":    time.Since(h.started).Seconds(),
		"timestamp": time.Now().Unix(),
	})
}
