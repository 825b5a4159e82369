package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/db"
	"github.com/cloudbsd/admin-panel/internal/models"
	"github.com/cloudbsd/admin-panel/internal/security"
	"gorm.io/gorm"
)

// Users manages panel accounts.
type Users struct {
	db    *gorm.DB
	audit *audit.Log
}

// NewUsers constructs a Users service.
func NewUsers(conn *gorm.DB, auditLog *audit.Log) *Users {
	return &Users{db: conn, audit: auditLog}
}

// NewUser is the input of Create.
type NewUser struct {
	Username string
	Password string
	Role     string
	Language string
}

// List returns every account without credentials.
func (u *Users) List(ctx context.Context) ([]Principal, error) {
	var rows []models.User
	if errFind := u.db.WithContext(ctx).
		Select("id", "username", "role", "language").
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, apperr.Internal(fmt.Errorf("auth: list users: %w", errFind))
	}
	out := make([]Principal, 0, len(rows))
	for _, row := range rows {
		out = append(out, principalFromUser(row))
	}
	return out, nil
}

// Create adds an account. Role defaults to viewer and language to en.
func (u *Users) Create(ctx context.Context, actor *uint64, in NewUser) (Principal, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return Principal{}, apperr.InvalidInput("Username is required")
	}
	if in.Password == "" {
		return Principal{}, apperr.InvalidInput("Password is required")
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = models.RoleViewer
	}
	if !models.ValidRole(role) {
		return Principal{}, apperr.InvalidInput("Invalid role")
	}
	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = models.DefaultLanguage
	}

	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return Principal{}, apperr.Internal(errHash)
	}
	user := models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Language:     language,
	}
	if errCreate := u.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return Principal{}, apperr.Conflict("Username already exists", errCreate)
		}
		return Principal{}, apperr.Internal(fmt.Errorf("auth: create user: %w", errCreate))
	}
	u.audit.Record(ctx, actor, audit.ActionUserCreate,
		fmt.Sprintf("Created user %s with role %s and language %s", user.Username, user.Role, user.Language))
	return principalFromUser(user), nil
}

// Delete removes an account and its grants. The seeded admin account and
// the caller's own account cannot be deleted.
func (u *Users) Delete(ctx context.Context, caller Principal, id uint64) error {
	var user models.User
	errFind := u.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return apperr.NotFound("User not found")
	}
	if errFind != nil {
		return apperr.Internal(fmt.Errorf("auth: load user %d: %w", id, errFind))
	}
	if user.ID == caller.ID {
		return apperr.Forbidden("You cannot delete your own account")
	}
	if user.Username == db.DefaultAdminUsername {
		return apperr.Forbidden("The default admin account cannot be deleted")
	}

	errTx := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errGrants := tx.Where("user_id = ?", id).Delete(&models.Permission{}).Error; errGrants != nil {
			return fmt.Errorf("auth: delete grants: %w", errGrants)
		}
		if errLogs := tx.Model(&models.LogEntry{}).Where("user_id = ?", id).Update("user_id", nil).Error; errLogs != nil {
			return fmt.Errorf("auth: detach log entries: %w", errLogs)
		}
		if errDelete := tx.Delete(&models.User{}, id).Error; errDelete != nil {
			return fmt.Errorf("auth: delete user: %w", errDelete)
		}
		return nil
	})
	if errTx != nil {
		return apperr.Internal(errTx)
	}
	u.audit.Record(ctx, caller.Actor(), audit.ActionUserDelete, "Deleted user "+user.Username)
	return nil
}
