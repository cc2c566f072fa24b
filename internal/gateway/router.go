package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/bizmatters/field-sales/visit-guard/internal/auth"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports whether an upstream dependency answers
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// RouterConfig holds everything NewRouter mounts
type RouterConfig struct {
	Handler    *Handler
	LiveFeed   *LiveFeed
	JWTManager *auth.JWTManager
	Ready      Pinger
	// DeviceBridge feeds background sampling only; when it is down the
	// service reports degraded but stays ready.
	DeviceBridge HealthChecker
	Logger       *slog.Logger
}

// NewRouter builds the HTTP router. Health checks live at the root, the
// agent API and the supervisor live feed under /api.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(structuredLoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if cfg.Ready != nil {
			if err := cfg.Ready.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"error":  "database connection failed",
				})
				return
			}
		}
		resp := gin.H{"status": "ready"}
		if cfg.DeviceBridge != nil {
			resp["device_bridge"] = "healthy"
			if !cfg.DeviceBridge.IsHealthy(ctx) {
				logger.WarnContext(ctx, "device bridge unhealthy")
				resp["status"] = "degraded"
				resp["device_bridge"] = "unavailable"
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(auth.RequireAuth(cfg.JWTManager, logger))

	h := cfg.Handler
	protected.GET("/trust", h.GetTrust)
	protected.POST("/gps/check", h.CheckGPS)

	protected.GET("/visits/active", h.GetActiveVisit)
	protected.POST("/visits", h.StartVisit)
	protected.POST("/visits/active/end", h.EndVisit)

	protected.GET("/tracking", h.GetTracking)
	protected.POST("/tracking/enable", h.EnableTracking)
	protected.POST("/tracking/disable", h.DisableTracking)

	if cfg.LiveFeed != nil {
		protected.GET("/ws/live", auth.RequireRole(auth.RoleSupervisor, logger), cfg.LiveFeed.Stream)
	}

	return router
}

// structuredLoggingMiddleware logs one JSON line per request
func structuredLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if agentID := auth.AgentID(c); agentID != "" {
			attrs = append(attrs, "agent_id", agentID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request", attrs...)
	}
}
