package models

import "time"

// Resource is a tracked VM, container or jail.
type Resource struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Type   string `gorm:"type:text;not null;index"` // vms, containers or jails.
	Name   string `gorm:"type:text;not null"`       // Display name.
	Status string `gorm:"type:text;not null"`       // Kind-specific status value.

	Image  *string `gorm:"type:text"`           // Container image reference.
	IP     *string `gorm:"column:ip;type:text"` // Assigned address.
	CPU    *int    `gorm:"column:cpu"`          // Allocated cores.
	Memory *string `gorm:"type:text"`           // Allocated memory, e.g. "2GB".
	Disk   *string `gorm:"type:text"`           // Allocated disk, e.g. "20GB".

	NodeID *uint64 `gorm:"index"`                                          // Hosting node ID.
	Node   *Node   `gorm:"foreignKey:NodeID;constraint:OnDelete:SET NULL"` // Hosting node.

	CreatedAt time.Time `gorm:"autoCreateTime;default:CURRENT_TIMESTAMP"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"autoUpdateTime"`                           // Last update timestamp.
}
