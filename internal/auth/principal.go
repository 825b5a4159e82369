package auth

import (
	"github.com/cloudbsd/admin-panel/internal/models"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Language string `json:"language"`
}

func principalFromUser(user models.User) Principal {
	return Principal{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		Language: user.Language,
	}
}

// Actor returns the principal's id for audit entries.
func (p Principal) Actor() *uint64 {
	id := p.ID
	return &id
}

// RolePredicate decides whether a principal may pass a route guard.
type RolePredicate func(Principal) bool

// Authenticated admits any verified principal.
func Authenticated(Principal) bool { return true }

// AdminOnly admits admins.
func AdminOnly(p Principal) bool { return p.Role == models.RoleAdmin }

// OperatorOrAdmin admits operators and admins.
func OperatorOrAdmin(p Principal) bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleOperator
}

// roleCovers reports whether the role alone allows action on a resource kind.
func roleCovers(role, action string) bool {
	switch action {
	case models.GrantRead:
		return role == models.RoleAdmin || role == models.RoleOperator || role == models.RoleViewer
	case models.GrantWrite:
		return role == models.RoleAdmin || role == models.RoleOperator
	case models.GrantAdmin:
		return role == models.RoleAdmin
	default:
		return false
	}
}
