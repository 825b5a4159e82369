package handlers

import (
	"github.com/cloudbsd/admin-panel/internal/realtime"
	"github.com/gin-gonic/gin"
)

// EventsHandler streams real-time events over a websocket.
type EventsHandler struct {
	hub *realtime.Hub
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream upgrades the connection and relays hub events until it closes.
func (h *EventsHandler) Stream(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
