package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/cloudbsd/admin-panel/internal/models"
	"gorm.io/gorm"
)

// Grant is one resource permission of a user.
type Grant struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Grants stores per-user resource grants. Grants only widen what a role
// allows; they never narrow it.
type Grants struct {
	db    *gorm.DB
	audit *audit.Log
}

// NewGrants constructs a Grants store.
func NewGrants(conn *gorm.DB, auditLog *audit.Log) *Grants {
	return &Grants{db: conn, audit: auditLog}
}

// AllowResource reports whether p may perform action on kind, either by
// role or through a grant whose action covers it.
func (g *Grants) AllowResource(ctx context.Context, p Principal, kind lifecycle.Kind, action string) (bool, error) {
	if roleCovers(p.Role, action) {
		return true, nil
	}
	need := models.GrantRank(action)
	if need == 0 || g == nil || g.db == nil {
		return false, nil
	}
	var rows []models.Permission
	if errFind := g.db.WithContext(ctx).
		Where("user_id = ? AND resource = ?", p.ID, kind.String()).
		Find(&rows).Error; errFind != nil {
		return false, apperr.Internal(fmt.Errorf("auth: load grants: %w", errFind))
	}
	for _, row := range rows {
		if models.GrantRank(row.Action) >= need {
			return true, nil
		}
	}
	return false, nil
}

// List returns the grants of userID sorted by resource and action.
func (g *Grants) List(ctx context.Context, userID uint64) ([]Grant, error) {
	if errUser := g.requireUser(ctx, g.db, userID); errUser != nil {
		return nil, errUser
	}
	var rows []models.Permission
	if errFind := g.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; errFind != nil {
		return nil, apperr.Internal(fmt.Errorf("auth: list grants: %w", errFind))
	}
	out := make([]Grant, 0, len(rows))
	for _, row := range rows {
		out = append(out, Grant{Resource: row.Resource, Action: row.Action})
	}
	sortGrants(out)
	return out, nil
}

// Replace swaps the grants of userID for grants in one transaction.
func (g *Grants) Replace(ctx context.Context, actor *uint64, userID uint64, grants []Grant) ([]Grant, error) {
	normalized, errNormalize := NormalizeGrants(grants)
	if errNormalize != nil {
		return nil, errNormalize
	}
	errTx := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUser := g.requireUser(ctx, tx, userID); errUser != nil {
			return errUser
		}
		if errDelete := tx.Where("user_id = ?", userID).Delete(&models.Permission{}).Error; errDelete != nil {
			return fmt.Errorf("auth: clear grants: %w", errDelete)
		}
		if len(normalized) == 0 {
			return nil
		}
		rows := make([]models.Permission, 0, len(normalized))
		for _, grant := range normalized {
			rows = append(rows, models.Permission{UserID: userID, Resource: grant.Resource, Action: grant.Action})
		}
		if errCreate := tx.Create(&rows).Error; errCreate != nil {
			return fmt.Errorf("auth: store grants: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		var appErr *apperr.Error
		if errors.As(errTx, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal(errTx)
	}
	g.audit.Record(ctx, actor, audit.ActionUserPermissions,
		fmt.Sprintf("Updated permissions of user ID %d: %s", userID, describeGrants(normalized)))
	return normalized, nil
}

func (g *Grants) requireUser(ctx context.Context, conn *gorm.DB, userID uint64) error {
	var user models.User
	errFind := conn.WithContext(ctx).Select("id").First(&user, userID).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return apperr.NotFound("User not found")
	}
	if errFind != nil {
		return apperr.Internal(fmt.Errorf("auth: load user %d: %w", userID, errFind))
	}
	return nil
}

// NormalizeGrants validates, de-duplicates and sorts grants.
func NormalizeGrants(grants []Grant) ([]Grant, error) {
	seen := make(map[Grant]struct{}, len(grants))
	out := make([]Grant, 0, len(grants))
	for _, grant := range grants {
		grant.Resource = strings.TrimSpace(grant.Resource)
		grant.Action = strings.ToLower(strings.TrimSpace(grant.Action))
		if _, ok := lifecycle.ParseKind(grant.Resource); !ok {
			return nil, apperr.InvalidInput("Invalid resource type: " + grant.Resource)
		}
		if models.GrantRank(grant.Action) == 0 {
			return nil, apperr.InvalidInput("Invalid permission action: " + grant.Action)
		}
		if _, dup := seen[grant]; dup {
			continue
		}
		seen[grant] = struct{}{}
		out = append(out, grant)
	}
	sortGrants(out)
	return out, nil
}

func sortGrants(grants []Grant) {
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Resource != grants[j].Resource {
			return grants[i].Resource < grants[j].Resource
		}
		return models.GrantRank(grants[i].Action) < models.GrantRank(grants[j].Action)
	})
}

func describeGrants(grants []Grant) string {
	if len(grants) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(grants))
	for _, grant := range grants {
		parts = append(parts, grant.Resource+":"+grant.Action)
	}
	return strings.Join(parts, ", ")
}
