package handlers

import (
	"net/http"

	"github.com/cloudbsd/admin-panel/internal/license"
	"github.com/gin-gonic/gin"
)

// LicenseHandler reads and registers the license.
type LicenseHandler struct {
	svc *license.Service
}

// NewLicenseHandler constructs a LicenseHandler.
func NewLicenseHandler(svc *license.Service) *LicenseHandler {
	return &LicenseHandler{svc: svc}
}

// Get returns the license with usage counts, or null when none is stored.
func (h *LicenseHandler) Get(c *gin.Context) {
	view, errGet := h.svc.Get(c.Request.Context())
	if errGet != nil {
		RespondError(c, errGet)
		return
	}
	if view == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, view)
}

type registerLicenseRequest struct {
	LicenseKey string `json:"license_key"`
}

// Register validates a key and overwrites the license with its tier.
func (h *LicenseHandler) Register(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var body registerLicenseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, errApply := h.svc.Apply(c.Request.Context(), p.Actor(), body.LicenseKey)
	if errApply != nil {
		RespondError(c, errApply)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "License registered successfully",
		"license": view,
	})
}
