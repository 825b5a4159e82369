package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/models"
	"github.com/cloudbsd/admin-panel/internal/security"
	"gorm.io/gorm"
)

// Account is the profile of the calling user.
type Account struct {
	Principal
	TOTPEnabled bool `json:"totp_enabled"`
}

// Account returns the profile of p.
func (g *Gateway) Account(ctx context.Context, p Principal) (Account, error) {
	user, errLoad := g.loadUser(ctx, g.db, p.ID)
	if errLoad != nil {
		return Account{}, errLoad
	}
	return Account{Principal: principalFromUser(user), TOTPEnabled: user.TOTPSecret != ""}, nil
}

// PrepareTOTP generates a pending TOTP secret for p. It becomes active only
// after ConfirmTOTP.
func (g *Gateway) PrepareTOTP(ctx context.Context, p Principal) (security.TOTPKey, error) {
	user, errLoad := g.loadUser(ctx, g.db, p.ID)
	if errLoad != nil {
		return security.TOTPKey{}, errLoad
	}
	if user.TOTPSecret != "" {
		return security.TOTPKey{}, apperr.Conflict("TOTP is already enabled", nil)
	}
	key, errGenerate := security.GenerateTOTP(user.Username)
	if errGenerate != nil {
		return security.TOTPKey{}, apperr.Internal(errGenerate)
	}
	if errUpdate := g.db.WithContext(ctx).Model(&user).Update("totp_pending_secret", key.Secret).Error; errUpdate != nil {
		return security.TOTPKey{}, apperr.Internal(fmt.Errorf("auth: store pending totp: %w", errUpdate))
	}
	return key, nil
}

// ConfirmTOTP activates the pending secret when code matches it.
func (g *Gateway) ConfirmTOTP(ctx context.Context, p Principal, code string) error {
	user, errLoad := g.loadUser(ctx, g.db, p.ID)
	if errLoad != nil {
		return errLoad
	}
	if user.TOTPPendingSecret == "" {
		return apperr.InvalidInput("No pending TOTP enrolment")
	}
	if !security.ValidateTOTP(user.TOTPPendingSecret, code, g.nowFn()) {
		return apperr.InvalidInput("Invalid TOTP code")
	}
	if errUpdate := g.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"totp_secret":         user.TOTPPendingSecret,
		"totp_pending_secret": "",
	}).Error; errUpdate != nil {
		return apperr.Internal(fmt.Errorf("auth: enable totp: %w", errUpdate))
	}
	g.audit.Record(ctx, p.Actor(), audit.ActionTOTPEnable, fmt.Sprintf("User %s enabled TOTP", user.Username))
	return nil
}

// DisableTOTP removes the TOTP secret when code matches it.
func (g *Gateway) DisableTOTP(ctx context.Context, p Principal, code string) error {
	user, errLoad := g.loadUser(ctx, g.db, p.ID)
	if errLoad != nil {
		return errLoad
	}
	if user.TOTPSecret == "" {
		return apperr.InvalidInput("TOTP is not enabled")
	}
	if !security.ValidateTOTP(user.TOTPSecret, code, g.nowFn()) {
		return apperr.InvalidInput("Invalid TOTP code")
	}
	if errUpdate := g.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"totp_secret":         "",
		"totp_pending_secret": "",
	}).Error; errUpdate != nil {
		return apperr.Internal(fmt.Errorf("auth: disable totp: %w", errUpdate))
	}
	g.audit.Record(ctx, p.Actor(), audit.ActionTOTPDisable, fmt.Sprintf("User %s disabled TOTP", user.Username))
	return nil
}

func (g *Gateway) loadUser(ctx context.Context, conn *gorm.DB, id uint64) (models.User, error) {
	var user models.User
	errFind := conn.WithContext(ctx).First(&user, id).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.User{}, apperr.NotFound("User not found")
	}
	if errFind != nil {
		return models.User{}, apperr.Internal(fmt.Errorf("auth: load user %d: %w", id, errFind))
	}
	return user, nil
}
