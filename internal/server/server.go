package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/cache"
	"github.com/aman-churiwal/edge-gateway/internal/config"
	"github.com/aman-churiwal/edge-gateway/internal/handler"
	"github.com/aman-churiwal/edge-gateway/internal/metrics"
	"github.com/aman-churiwal/edge-gateway/internal/middleware"
	"github.com/aman-churiwal/edge-gateway/internal/ratelimit"
	"github.com/aman-churiwal/edge-gateway/internal/service"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	jobsPath = "/api/v1/jobs"
	jobPath  = "/api/v1/jobs/:id"
)

// Deps are the long-lived collaborators created in main and shared by every
// request.
type Deps struct {
	Store    *storage.RedisClient
	Jobs     service.JobRepository
	Database handler.Pinger // nil when jobs are kept in memory
	Logger   *zap.Logger
	Registry *prometheus.Registry
}

type Server struct {
	router     *gin.Engine
	config     *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	limiter    *ratelimit.Limiter
	cache      *cache.ResponseCache
	auth       *service.AuthService
	jobs       *handler.JobHandler
	system     *handler.SystemHandler
	httpServer *http.Server
}

func New(cfg *config.Config, deps Deps) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := metrics.New(registry)

	limiter := ratelimit.New(deps.Store,
		ratelimit.WithTimeout(cfg.RateLimit.StoreTimeout),
		ratelimit.WithGrace(cfg.RateLimit.Grace),
		ratelimit.WithBypass(cfg.DebugBypassRateLimiting),
		ratelimit.WithLogger(logger.Named("ratelimit")),
		ratelimit.WithMetrics(m),
	)

	responseCache := cache.New(deps.Store,
		cache.WithTimeout(cfg.Cache.StoreTimeout),
		cache.WithSingleFlight(cfg.Cache.SingleFlight),
		cache.WithLogger(logger.Named("cache")),
		cache.WithMetrics(m),
	)

	jobService := service.NewJobService(deps.Jobs, responseCache, logger.Named("jobs"))

	s := &Server{
		router:   gin.New(),
		config:   cfg,
		logger:   logger,
		registry: registry,
		limiter:  limiter,
		cache:    responseCache,
		auth:     service.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry),
		jobs:     handler.NewJobHandler(jobService, logger.Named("jobs")),
		system:   handler.NewSystemHandler(cfg, deps.Store, deps.Database, limiter, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger))
}

// Every route runs its rate limit stages first, then the cache stage, then
// the handler. Writes authenticate before they are limited per user.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.system.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	admin := s.router.Group("/admin")
	{
		admin.GET("/status", s.system.Status)
	}

	listKey := middleware.QueryKey(s.cache, service.JobListNamespace, s.config.Cache.IgnoreParams, false)
	detailKey := middleware.ParamKey(service.JobDetailKey, "id")

	reads := s.router.Group("", middleware.OptionalAuth(s.auth))
	{
		reads.GET(jobsPath,
			s.limit(http.MethodGet, jobsPath, ratelimit.ScopeIP),
			middleware.Cache(s.cache, s.config.Cache.ListTTL, listKey),
			s.jobs.List,
		)
		reads.GET(jobPath,
			s.limit(http.MethodGet, jobPath, ratelimit.ScopeIP),
			middleware.Cache(s.cache, s.config.Cache.DetailTTL, detailKey),
			s.jobs.Get,
		)
	}

	writes := s.router.Group("", middleware.RequireAuth(s.auth))
	{
		writes.POST(jobsPath, s.writeLimits(http.MethodPost, jobsPath, s.jobs.Create)...)
		writes.PUT(jobPath, s.writeLimits(http.MethodPut, jobPath, s.jobs.Update)...)
		writes.DELETE(jobPath, s.writeLimits(http.MethodDelete, jobPath, s.jobs.Delete)...)
	}
}

// limit builds the rate limit stage for one (route, scope), honoring
// per-route overrides from config.
func (s *Server) limit(method, path string, scope ratelimit.Scope) gin.HandlerFunc {
	rule := s.config.RuleFor(method, path, scope.String())
	return middleware.RateLimit(s.limiter, ratelimit.Policy{
		Scope:  scope,
		Limit:  rule.Limit,
		Window: rule.Window,
	})
}

func (s *Server) writeLimits(method, path string, h gin.HandlerFunc) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		s.limit(method, path, ratelimit.ScopeUser),
		s.limit(method, path, ratelimit.ScopeEndpoint),
		h,
	}
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.logger.Info("starting edge gateway",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment),
	)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
