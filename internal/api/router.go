// Package api wires together all HTTP routes for the issuance registry.
//
// Route grouping:
//   - /health, /ready and /version are operational probes.
//   - /files/*filepath and /api/v1/public/ serve the unauthenticated portal and
//     are rate limited per client IP.
//   - Everything else under /api/v1/ requires a bearer token. The token's
//     subject becomes the actor recorded in audit_logs.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/api/admin"
	"github.com/lgu-records/issuance-registry/internal/api/public"
	"github.com/lgu-records/issuance-registry/internal/api/records"
	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/middleware"
	"github.com/lgu-records/issuance-registry/internal/services"
	"github.com/lgu-records/issuance-registry/internal/storage"
)

// Version is the server version reported by /version. It is overridden at
// build time with -ldflags.
var Version = "0.1.0"

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. forwarder receives audit
// entries after commit and may be nil.
func NewRouter(cfg *config.Config, db *sqlx.DB, blobs *storage.BlobStore, forwarder services.AuditForwarder) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	issuanceService := services.NewIssuanceService(db, blobs, forwarder, cfg.Records)
	irrService := services.NewIRRService(db, blobs, forwarder, cfg.Records)

	publicRateLimiter := middleware.NewRateLimiter(middleware.PublicRateLimitConfig())
	uploadRateLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, blobs))
	router.GET("/version", versionHandler())

	// Documents are framed by the portal's PDF viewer
	router.GET("/files/*filepath",
		middleware.RateLimitMiddleware(publicRateLimiter),
		middleware.SecurityHeadersMiddleware(middleware.DocumentSecurityHeadersConfig()),
		public.ServeFileHandler(blobs),
	)

	portal := public.NewPortalHandlers(issuanceService, cfg.Records.PublicPageSize)
	publicGroup := router.Group("/api/v1/public")
	publicGroup.Use(middleware.RateLimitMiddleware(publicRateLimiter))
	{
		publicGroup.GET("/:kind", portal.List)
		publicGroup.GET("/:kind/:id", portal.Get)
	}

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware())
	upload := middleware.RateLimitMiddleware(uploadRateLimiter)

	issuanceHandlers := records.NewIssuanceHandlers(issuanceService, irrService, cfg.Records.AdminPageSize)
	recordsGroup := apiV1.Group("/records/:kind")
	{
		recordsGroup.GET("", issuanceHandlers.List)
		recordsGroup.GET("/options", issuanceHandlers.Options)
		recordsGroup.GET("/:id", issuanceHandlers.Get)
		recordsGroup.GET("/:id/irrs", issuanceHandlers.IRRs)
		recordsGroup.POST("", upload, issuanceHandlers.Create)
		recordsGroup.PUT("/:id", upload, issuanceHandlers.Update)
		recordsGroup.PATCH("/:id/active", issuanceHandlers.ToggleActive)
		recordsGroup.DELETE("/:id", issuanceHandlers.Delete)
	}

	irrHandlers := records.NewIRRHandlers(irrService, cfg.Records.AdminPageSize)
	irrGroup := apiV1.Group("/irrs")
	{
		irrGroup.GET("", irrHandlers.List)
		irrGroup.POST("", upload, irrHandlers.Create)
		irrGroup.PUT("/:id", upload, irrHandlers.Update)
		irrGroup.DELETE("/:id", irrHandlers.Delete)
	}

	statsHandler := admin.NewStatsHandler(db)
	statusHandlers := admin.NewStatusHandlers(db, cfg.Records.AdminPageSize)
	departmentHandlers := admin.NewDepartmentHandlers(db)
	auditHandlers := admin.NewAuditLogHandlers(db, cfg.Records.AdminPageSize)
	adminGroup := apiV1.Group("/admin")
	{
		adminGroup.GET("/dashboard", statsHandler.GetDashboardStats)

		adminGroup.GET("/statuses", statusHandlers.ListStatusesHandler())
		adminGroup.GET("/statuses/all", statusHandlers.AllStatusesHandler())
		adminGroup.POST("/statuses", statusHandlers.CreateStatusHandler())
		adminGroup.PUT("/statuses/:id", statusHandlers.UpdateStatusHandler())
		adminGroup.DELETE("/statuses/:id", statusHandlers.DeleteStatusHandler())

		adminGroup.GET("/departments", departmentHandlers.ListDepartmentsHandler())
		adminGroup.GET("/departments/:id", departmentHandlers.GetDepartmentHandler())

		adminGroup.GET("/audit-logs", auditHandlers.ListAuditLogsHandler())
		adminGroup.GET("/audit-logs/:id", auditHandlers.GetAuditLogHandler())
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{publicRateLimiter, uploadRateLimiter},
	}
	return router, bg
}

// pinger is satisfied by *sql.DB and *sqlx.DB
type pinger interface {
	PingContext(ctx context.Context) error
}

// storageProbe is satisfied by *storage.BlobStore
type storageProbe interface {
	Ping(ctx context.Context) error
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and the document store.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when uploads or downloads would error.
func readinessHandler(db pinger, blobs storageProbe) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if err := blobs.Ping(c.Request.Context()); err != nil {
			slog.Warn("storage readiness probe failed", "error", err)
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured record per request. The output format
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("actor_id", c.GetString(middleware.ActorIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

var defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := cfg.Security.CORS.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowMethods := strings.Join(methods, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
