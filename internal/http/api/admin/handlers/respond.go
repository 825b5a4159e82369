package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/auth"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Context keys shared with the route middleware.
const (
	principalKey = "principal"
	RequestIDKey = "requestID"
)

// SetPrincipal attaches the verified caller to c.
func SetPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller attached by the auth middleware.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := value.(auth.Principal)
	return p, ok
}

// RespondError writes err as {"error": message} with the status of its kind.
// Internal causes are logged and never sent to the client.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		entry := log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		})
		if id := c.GetString(RequestIDKey); id != "" {
			entry = entry.WithField("request_id", id)
		}
		entry.Error("request failed")
	}
	c.AbortWithStatusJSON(kind.Status(), gin.H{"error": apperr.Message(err)})
}

// parseID reads a positive integer path parameter.
func parseID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// mustPrincipal returns the caller or aborts with 401.
func mustPrincipal(c *gin.Context) (auth.Principal, bool) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return auth.Principal{}, false
	}
	return p, true
}
