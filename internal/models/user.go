package models

import "time"

// Role values stored in User.Role.
const (
	RoleAdmin    = "admin"    // Full access including user management.
	RoleOperator = "operator" // May mutate nodes and resources.
	RoleViewer   = "viewer"   // Read-only access.
)

// DefaultLanguage is assigned to users created without a language.
const DefaultLanguage = "en"

// User represents a panel account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username     string `gorm:"type:text;not null;unique"`          // Unique login name.
	PasswordHash string `gorm:"column:password;type:text;not null"` // Bcrypt password hash.
	Role         string `gorm:"type:text;not null;default:viewer"`  // One of admin, operator, viewer.
	Language     string `gorm:"type:text;default:en"`               // UI language code.

	TOTPSecret        string `gorm:"column:totp_secret;type:text"`         // Confirmed TOTP secret; empty when MFA is off.
	TOTPPendingSecret string `gorm:"column:totp_pending_secret;type:text"` // Secret awaiting confirmation.

	Permissions []Permission `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Resource grants.

	CreatedAt time.Time `gorm:"autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"autoUpdateTime"` // Last update timestamp.
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}
