package models

import "time"

// LogEntry is one append-only audit record.
type LogEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Timestamp time.Time `gorm:"autoCreateTime;default:CURRENT_TIMESTAMP;index"` // Event time.
	UserID    *uint64   `gorm:"index"`                                          // Acting user; nil for system or anonymous events.
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL"` // Acting user.
	Action    string    `gorm:"type:text;not null"`                             // Action code such as LOGIN_SUCCESS.
	Details   *string   `gorm:"type:text"`                                      // Free-form description.
}

// TableName keeps the table name used by existing installations.
func (LogEntry) TableName() string { return "logs" }
