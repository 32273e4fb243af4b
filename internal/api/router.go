package api

import (
	"strconv"
	"time"

	"fooocus-orchestrator/internal/auth"
	"fooocus-orchestrator/internal/config"
	"fooocus-orchestrator/internal/monitoring"
	"fooocus-orchestrator/internal/tracing"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the GPU-orchestration HTTP/WebSocket surface: gin's
// recovery middleware, structured request logging, Prometheus request
// metrics, CORS, optional tracing and optional IP rate limiting on
// /generate, then the route table itself.
func NewRouter(
	h *Handler,
	metrics *monitoring.Metrics,
	tracingManager *tracing.TracingManager,
	rateLimiter *auth.RateLimiter,
	cfg *config.Config,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())

	if cfg.Security.EnableSecurityHeaders {
		router.Use(secure.New(secure.Config{
			BrowserXssFilter:      true,
			ContentTypeNosniff:    true,
			FrameDeny:             true,
			ContentSecurityPolicy: "default-src 'self'",
			ReferrerPolicy:        "strict-origin-when-cross-origin",
		}))
	}

	router.Use(GinLogger(logger))
	router.Use(MetricsMiddleware(metrics))

	if tracingManager != nil {
		router.Use(tracingManager.TracingMiddleware())
	}

	if cfg.Security.CORSEnabled {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Security.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Correlation-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Correlation-ID", "X-Trace-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", h.Health)
	router.GET("/ws", h.WebSocket)
	router.StaticFS("/images", gin.Dir(cfg.History.OutputsDir, false))

	api := router.Group("/")
	{
		api.GET("/settings", h.GetSettings)
		api.GET("/gpus", h.GetGPUs)
		api.GET("/status/:taskId", h.GetStatus)
		api.POST("/stop", h.Stop)
		api.GET("/history", h.GetHistory)
		api.GET("/config/editor", h.GetConfigEditor)
		api.POST("/config/editor", h.PostConfigEditor)

		generate := api.Group("/")
		if rateLimiter != nil && cfg.RateLimit.Enabled {
			generate.Use(rateLimiter.RateLimitMiddleware(auth.RateLimitConfig{
				RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
				BurstLimit:        cfg.RateLimit.BurstLimit,
				WindowDuration:    cfg.RateLimit.WindowDuration,
			}))
		}
		generate.POST("/generate", h.Generate)
	}

	return router
}

func GinLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}

func MetricsMiddleware(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequest(c.Request.Method, c.FullPath(), status, duration)
	}
}
