package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/auth"
	handlers "github.com/cloudbsd/admin-panel/internal/http/api/admin/handlers"
	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/cloudbsd/admin-panel/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// authMiddleware verifies the bearer token and attaches the principal.
// allowQuery also accepts ?token=, which websocket clients in browsers need.
func authMiddleware(gateway *auth.Gateway, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = strings.TrimSpace(c.Query("token"))
		}
		principal, errVerify := gateway.Verify(c.Request.Context(), token)
		if errVerify != nil {
			handlers.RespondError(c, errVerify)
			return
		}
		handlers.SetPrincipal(c, principal)
		c.Next()
	}
}

// requireRole rejects principals that fail allow with 403 and msg.
func requireRole(allow auth.RolePredicate, msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := handlers.PrincipalFrom(c)
		if !ok || !allow(principal) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
			return
		}
		c.Next()
	}
}

// resourceGuard resolves the :resource segment and checks that the principal
// may perform action on it, by role or by grant.
func resourceGuard(grants *auth.Grants, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, ok := lifecycle.ParseKind(c.Param("resource"))
		if !ok {
			msg := "Invalid resource type"
			if c.Param("action") != "" {
				msg = "Invalid resource or action"
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		principal, ok := handlers.PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}
		allowed, errAllow := grants.AllowResource(c.Request.Context(), principal, kind, action)
		if errAllow != nil {
			handlers.RespondError(c, errAllow)
			return
		}
		if !allowed {
			msg := msgAccessDenied
			if action == models.GrantWrite {
				msg = msgOperatorRequired
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
			return
		}
		handlers.SetKind(c, kind)
		c.Next()
	}
}

// requestIDMiddleware propagates or assigns a request id.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(handlers.RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogMiddleware logs one line per request.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"request_id": c.GetString(handlers.RequestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if principal, ok := handlers.PrincipalFrom(c); ok {
			entry = entry.WithField("user", principal.Username)
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Info("request")
		default:
			entry.Debug("request")
		}
	}
}

// corsMiddleware enables permissive CORS; tokens travel in headers, not cookies.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
