package admin

import (
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/auth"
	"github.com/cloudbsd/admin-panel/internal/cluster"
	"github.com/cloudbsd/admin-panel/internal/config"
	handlers "github.com/cloudbsd/admin-panel/internal/http/api/admin/handlers"
	"github.com/cloudbsd/admin-panel/internal/license"
	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/cloudbsd/admin-panel/internal/metrics"
	"github.com/cloudbsd/admin-panel/internal/models"
	"github.com/cloudbsd/admin-panel/internal/ratelimit"
	"github.com/cloudbsd/admin-panel/internal/realtime"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Guard messages returned with 403.
const (
	msgAdminRequired    = "Admin access required"
	msgOperatorRequired = "Operator access required"
	msgAccessDenied     = "Access denied"
)

// RegisterAdminRoutes registers the API routes, middleware, and handlers.
// hub may be nil when no real-time channel is needed; limiter may be nil to
// disable login throttling.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, hub *realtime.Hub, limiter *ratelimit.Manager) {
	if r == nil || db == nil {
		return
	}
	if hub == nil {
		hub = realtime.NewHub()
	}

	// X-Forwarded-For is honoured only from configured proxies.
	if errProxies := r.SetTrustedProxies(cfg.TrustedProxies); errProxies != nil {
		log.WithError(errProxies).Warn("invalid trusted proxies, using the peer address")
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(requestIDMiddleware())
	r.Use(requestLogMiddleware())
	r.Use(metrics.Middleware())
	r.Use(corsMiddleware())

	auditLog := audit.New(db)
	gateway := auth.NewGateway(db, auditLog, auth.Options{
		Secret:  cfg.JWTSecret(),
		TTL:     cfg.JWT.Expiry,
		Limiter: limiter,
	})
	grants := auth.NewGrants(db, auditLog)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")

	healthHandler := handlers.NewHealthHandler(db)
	api.GET("/health", healthHandler.Health)

	authHandler := handlers.NewAuthHandler(gateway)
	api.POST("/login", authHandler.Login)

	eventsHandler := handlers.NewEventsHandler(hub)
	api.GET("/events", authMiddleware(gateway, true), eventsHandler.Stream)

	authed := api.Group("")
	authed.Use(authMiddleware(gateway, false))

	adminOnly := requireRole(auth.AdminOnly, msgAdminRequired)
	operatorOrAdmin := requireRole(auth.OperatorOrAdmin, msgOperatorRequired)

	authed.GET("/account", authHandler.Account)
	authed.POST("/account/totp/prepare", authHandler.PrepareTOTP)
	authed.POST("/account/totp/confirm", authHandler.ConfirmTOTP)
	authed.POST("/account/totp/disable", authHandler.DisableTOTP)

	userHandler := handlers.NewUserHandler(auth.NewUsers(db, auditLog), grants)
	authed.GET("/users", adminOnly, userHandler.List)
	authed.POST("/users", adminOnly, userHandler.Create)
	authed.DELETE("/users/:id", adminOnly, userHandler.Delete)
	authed.GET("/users/:id/permissions", adminOnly, userHandler.GetPermissions)
	authed.PUT("/users/:id/permissions", adminOnly, userHandler.UpdatePermissions)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", adminOnly, permissionHandler.List)

	nodeHandler := handlers.NewNodeHandler(cluster.NewService(db, auditLog))
	authed.GET("/nodes", nodeHandler.List)
	authed.GET("/nodes/:id", nodeHandler.Get)
	authed.POST("/nodes", operatorOrAdmin, nodeHandler.Create)
	authed.PUT("/nodes/:id", operatorOrAdmin, nodeHandler.Update)
	authed.DELETE("/nodes/:id", adminOnly, nodeHandler.Delete)
	authed.GET("/cluster/stats", nodeHandler.Stats)

	systemHandler := handlers.NewSystemHandler(cfg)
	authed.GET("/system/stats", systemHandler.Stats)
	authed.GET("/system/host", systemHandler.Host)
	authed.GET("/system/info", systemHandler.Info)
	authed.GET("/system/config", adminOnly, systemHandler.Config)

	licenseHandler := handlers.NewLicenseHandler(license.NewService(db, auditLog))
	authed.GET("/system/license", licenseHandler.Get)
	authed.POST("/system/license", adminOnly, licenseHandler.Register)

	logsHandler := handlers.NewLogsHandler(auditLog)
	authed.GET("/logs", adminOnly, logsHandler.List)

	// Fixed paths above take precedence over the resource wildcard.
	resourceHandler := handlers.NewResourceHandler(lifecycle.NewService(db, auditLog, hub))
	canRead := resourceGuard(grants, models.GrantRead)
	canWrite := resourceGuard(grants, models.GrantWrite)
	authed.GET("/:resource", canRead, resourceHandler.List)
	authed.GET("/:resource/:id", canRead, resourceHandler.Get)
	authed.POST("/:resource", canWrite, resourceHandler.Create)
	authed.PUT("/:resource/:id", canWrite, resourceHandler.Update)
	authed.DELETE("/:resource/:id", canWrite, resourceHandler.Delete)
	authed.POST("/:resource/:id/:action", canWrite, resourceHandler.Action)
}
