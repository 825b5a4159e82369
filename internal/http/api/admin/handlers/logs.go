package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/gin-gonic/gin"
)

// LogsHandler lists audit entries.
type LogsHandler struct {
	audit *audit.Log
}

// NewLogsHandler constructs a LogsHandler.
func NewLogsHandler(auditLog *audit.Log) *LogsHandler {
	return &LogsHandler{audit: auditLog}
}

// List returns the newest entries, optionally filtered by ?search=.
func (h *LogsHandler) List(c *gin.Context) {
	opts := audit.ListOptions{Search: strings.TrimSpace(c.Query("search"))}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, errParse := strconv.Atoi(raw)
		if errParse != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		opts.Limit = limit
	}
	entries, errList := h.audit.List(c.Request.Context(), opts)
	if errList != nil {
		RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, entries)
}
