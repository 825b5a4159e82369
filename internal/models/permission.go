package models

// Grant actions stored in Permission.Action, ordered by strength.
const (
	GrantRead  = "read"
	GrantWrite = "write"
	GrantAdmin = "admin"
)

// Permission grants a user an action on one resource kind.
type Permission struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64 `gorm:"not null;index"`     // Owning user ID.
	Resource string `gorm:"type:text;not null"` // vms, containers or jails.
	Action   string `gorm:"type:text;not null"` // read, write or admin.
}

// GrantRank orders grant actions; unknown actions rank zero.
func GrantRank(action string) int {
	switch action {
	case GrantRead:
		return 1
	case GrantWrite:
		return 2
	case GrantAdmin:
		return 3
	default:
		return 0
	}
}
