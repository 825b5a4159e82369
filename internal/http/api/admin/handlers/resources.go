package handlers

import (
	"net/http"

	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/gin-gonic/gin"
)

const kindKey = "resourceKind"

// SetKind attaches the resource kind resolved from the route.
func SetKind(c *gin.Context, kind lifecycle.Kind) {
	c.Set(kindKey, kind)
}

// kindFrom returns the resolved kind, parsing the route segment when the
// middleware did not run.
func kindFrom(c *gin.Context) (lifecycle.Kind, bool) {
	if value, ok := c.Get(kindKey); ok {
		if kind, okKind := value.(lifecycle.Kind); okKind {
			return kind, true
		}
	}
	kind, ok := lifecycle.ParseKind(c.Param("resource"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource type"})
	}
	return kind, ok
}

// ResourceHandler serves vms, containers and jails.
type ResourceHandler struct {
	svc *lifecycle.Service
}

// NewResourceHandler constructs a ResourceHandler.
func NewResourceHandler(svc *lifecycle.Service) *ResourceHandler {
	return &ResourceHandler{svc: svc}
}

// resourceRequest is the body of resource create and update.
type resourceRequest struct {
	Name   string  `json:"name"`
	Image  *string `json:"image"`
	IP     *string `json:"ip"`
	CPU    *int    `json:"cpu"`
	Memory *string `json:"memory"`
	Disk   *string `json:"disk"`
	NodeID *uint64 `json:"node_id"`
}

func (r resourceRequest) input() lifecycle.Input {
	return lifecycle.Input{
		Name:   r.Name,
		Image:  r.Image,
		IP:     r.IP,
		CPU:    r.CPU,
		Memory: r.Memory,
		Disk:   r.Disk,
		NodeID: r.NodeID,
	}
}

// List returns the resources of one kind with their node names.
func (h *ResourceHandler) List(c *gin.Context) {
	kind, ok := kindFrom(c)
	if !ok {
		return
	}
	rows, errList := h.svc.List(c.Request.Context(), kind)
	if errList != nil {
		RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Get returns one resource.
func (h *ResourceHandler) Get(c *gin.Context) {
	kind, ok := kindFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	row, errGet := h.svc.Get(c.Request.Context(), kind, id)
	if errGet != nil {
		RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, row)
}

// Create adds a resource in its stopped state.
func (h *ResourceHandler) Create(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	kind, ok := kindFrom(c)
	if !ok {
		return
	}
	var body resourceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errCreate := h.svc.Create(c.Request.Context(), p.Actor(), kind, body.input())
	if errCreate != nil {
		RespondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":     res.ID,
		"name":   res.Name,
		"status": res.Status,
	})
}

// Update overwrites a resource's writable fields.
func (h *ResourceHandler) Update(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	kind, ok := kindFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body resourceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errUpdate := h.svc.Update(c.Request.Context(), p.Actor(), kind, id, body.input()); errUpdate != nil {
		RespondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Resource updated successfully"})
}

// Delete removes a resource.
func (h *ResourceHandler) Delete(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	kind, ok := kindFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.svc.Delete(c.Request.Context(), p.Actor(), kind, id); errDelete != nil {
		RespondError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// Action starts, stops or restarts a resource.
func (h *ResourceHandler) Action(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	kind, okKind := lifecycle.ParseKind(c.Param("resource"))
	action, okAction := lifecycle.ParseAction(c.Param("action"))
	if !okKind || !okAction {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource or action"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	status, errApply := h.svc.Apply(c.Request.Context(), p.Actor(), kind, id, action)
	if errApply != nil {
		RespondError(c, errApply)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully " + lifecycle.ActionMessage(kind, id, action),
		"status":  status,
	})
}
