package handlers

import (
	"fmt"
	"net/http"

	"github.com/cloudbsd/admin-panel/internal/config"
	"github.com/cloudbsd/admin-panel/internal/sysinfo"
	"github.com/gin-gonic/gin"
)

// SystemHandler reports host facts and the running configuration.
type SystemHandler struct {
	cfg     config.Config
	collect func() sysinfo.Host
}

// NewSystemHandler constructs a SystemHandler.
func NewSystemHandler(cfg config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg, collect: sysinfo.Collect}
}

// Stats returns the dashboard load summary.
func (h *SystemHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, sysinfo.SampleStats(h.collect()))
}

// Host returns detailed host facts.
func (h *SystemHandler) Host(c *gin.Context) {
	host := h.collect()
	c.JSON(http.StatusOK, gin.H{
		"hostname":    host.Hostname,
		"platform":    host.Platform,
		"release":     host.Release,
		"arch":        host.Arch,
		"cpus":        host.CPUs,
		"cpuModel":    host.CPUModel,
		"totalMemory": sysinfo.FormatGB(host.TotalMemory),
		"freeMemory":  sysinfo.FormatGB(host.FreeMemory),
		"loadAverage": host.LoadAverage,
	})
}

// Info returns the short host summary shown in the header.
func (h *SystemHandler) Info(c *gin.Context) {
	host := h.collect()
	c.JSON(http.StatusOK, gin.H{
		"hostname": host.Hostname,
		"os":       host.OSName + " " + host.Release,
		"cpu":      host.CPUModel,
		"cores":    fmt.Sprintf("%d Cores", host.CPUs),
	})
}

// Config returns the non-secret parts of the configuration.
func (h *SystemHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"port":       h.cfg.Port,
		"servername": h.cfg.ServerName,
		"dbPath":     h.cfg.DBPath,
		"demoMode":   h.cfg.DemoMode,
		"ssl": gin.H{
			"enabled": h.cfg.SSL.Enabled,
		},
	})
}
