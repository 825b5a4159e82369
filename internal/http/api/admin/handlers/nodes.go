package handlers

import (
	"net/http"

	"github.com/cloudbsd/admin-panel/internal/cluster"
	"github.com/gin-gonic/gin"
)

// NodeHandler manages cluster nodes.
type NodeHandler struct {
	cluster *cluster.Service
}

// NewNodeHandler constructs a NodeHandler.
func NewNodeHandler(svc *cluster.Service) *NodeHandler {
	return &NodeHandler{cluster: svc}
}

// nodeRequest is the body of node create and update. Capacities are display
// strings such as "32GB".
type nodeRequest struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	IP        string `json:"ip"`
	CPUTotal  *int   `json:"cpu_total"`
	CPUUsed   *int   `json:"cpu_used"`
	MemTotal  string `json:"mem_total"`
	MemUsed   string `json:"mem_used"`
	DiskTotal string `json:"disk_total"`
	DiskUsed  string `json:"disk_used"`
}

func (r nodeRequest) input() cluster.Input {
	return cluster.Input{
		Name:      r.Name,
		Role:      r.Role,
		Status:    r.Status,
		IP:        r.IP,
		CPUTotal:  r.CPUTotal,
		CPUUsed:   r.CPUUsed,
		MemTotal:  r.MemTotal,
		MemUsed:   r.MemUsed,
		DiskTotal: r.DiskTotal,
		DiskUsed:  r.DiskUsed,
	}
}

// List returns every node, main first.
func (h *NodeHandler) List(c *gin.Context) {
	nodes, errList := h.cluster.List(c.Request.Context())
	if errList != nil {
		RespondError(c, errList)
		return
	}
	out := make([]cluster.View, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, cluster.NewView(node))
	}
	c.JSON(http.StatusOK, out)
}

// Get returns one node.
func (h *NodeHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	node, errGet := h.cluster.Get(c.Request.Context(), id)
	if errGet != nil {
		RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, cluster.NewView(node))
}

// Create registers a node.
func (h *NodeHandler) Create(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var body nodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	node, errCreate := h.cluster.Create(c.Request.Context(), p.Actor(), body.input())
	if errCreate != nil {
		RespondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, cluster.NewView(node))
}

// Update overwrites a node.
func (h *NodeHandler) Update(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body nodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	node, errUpdate := h.cluster.Update(c.Request.Context(), p.Actor(), id, body.input())
	if errUpdate != nil {
		RespondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, cluster.NewView(node))
}

// Delete removes a worker node and detaches its resources.
func (h *NodeHandler) Delete(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.cluster.Delete(c.Request.Context(), p.Actor(), id); errDelete != nil {
		RespondError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats returns aggregate cluster capacity.
func (h *NodeHandler) Stats(c *gin.Context) {
	stats, errStats := h.cluster.Stats(c.Request.Context())
	if errStats != nil {
		RespondError(c, errStats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
