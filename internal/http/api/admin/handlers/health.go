package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports liveness and database reachability.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health responds with {"status":"ok"} when the database answers a ping.
func (h *HealthHandler) Health(c *gin.Context) {
	now := time.Now().UTC()
	if h.db != nil {
		sqlDB, errDB := h.db.DB()
		if errDB == nil {
			errDB = sqlDB.PingContext(c.Request.Context())
		}
		if errDB != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "timestamp": now})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": now})
}
