package handlers

import (
	"net/http"

	"github.com/cloudbsd/admin-panel/internal/auth"
	"github.com/cloudbsd/admin-panel/internal/http/api/admin/permissions"
	"github.com/gin-gonic/gin"
)

// UserHandler manages user account endpoints.
type UserHandler struct {
	users  *auth.Users
	grants *auth.Grants
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *auth.Users, grants *auth.Grants) *UserHandler {
	return &UserHandler{users: users, grants: grants}
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Language string `json:"language"`
}

// Create creates a new user account.
func (h *UserHandler) Create(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, errCreate := h.users.Create(c.Request.Context(), p.Actor(), auth.NewUser{
		Username: body.Username,
		Password: body.Password,
		Role:     body.Role,
		Language: body.Language,
	})
	if errCreate != nil {
		RespondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// List returns every user without credentials.
func (h *UserHandler) List(c *gin.Context) {
	users, errList := h.users.List(c.Request.Context())
	if errList != nil {
		RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Delete removes a user.
func (h *UserHandler) Delete(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.users.Delete(c.Request.Context(), p, id); errDelete != nil {
		RespondError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// permissionsBody carries permission keys such as "vms:write".
type permissionsBody struct {
	Permissions []string `json:"permissions"`
}

// GetPermissions returns the grants of a user as permission keys.
func (h *UserHandler) GetPermissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	grants, errList := h.grants.List(c.Request.Context(), id)
	if errList != nil {
		RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, permissionsBody{Permissions: permissions.FromGrants(grants)})
}

// UpdatePermissions replaces the grants of a user.
func (h *UserHandler) UpdatePermissions(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body permissionsBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	grants, errParse := permissions.ToGrants(body.Permissions)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errParse.Error()})
		return
	}
	stored, errReplace := h.grants.Replace(c.Request.Context(), p.Actor(), id, grants)
	if errReplace != nil {
		RespondError(c, errReplace)
		return
	}
	c.JSON(http.StatusOK, permissionsBody{Permissions: permissions.FromGrants(stored)})
}

// PermissionHandler lists grantable permissions.
type PermissionHandler struct{}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns every permission definition.
func (h *PermissionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": permissions.Definitions()})
}
