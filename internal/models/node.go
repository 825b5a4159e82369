package models

import "time"

// Node roles.
const (
	NodeRoleMain   = "main"
	NodeRoleWorker = "worker"
)

// Node statuses.
const (
	NodeStatusOnline      = "online"
	NodeStatusOffline     = "offline"
	NodeStatusMaintenance = "maintenance"
)

// Node is a physical or virtual host in the cluster. Capacity columns hold megabytes.
type Node struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name   string `gorm:"type:text;not null;unique"`         // Unique node name.
	Role   string `gorm:"type:text;not null;default:worker"` // main or worker.
	Status string `gorm:"type:text;not null;default:online"` // online, offline or maintenance.
	IP     string `gorm:"column:ip;type:text"`               // Management address.

	CPUTotal *int `gorm:"column:cpu_total"` // Total cores.
	CPUUsed  *int `gorm:"column:cpu_used"`  // Cores in use.

	MemTotalMB  *int64 `gorm:"column:mem_total_mb"`  // Total memory in MB.
	MemUsedMB   *int64 `gorm:"column:mem_used_mb"`   // Used memory in MB.
	DiskTotalMB *int64 `gorm:"column:disk_total_mb"` // Total disk in MB.
	DiskUsedMB  *int64 `gorm:"column:disk_used_mb"`  // Used disk in MB.

	CreatedAt time.Time `gorm:"autoCreateTime;default:CURRENT_TIMESTAMP"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"autoUpdateTime"`                           // Last update timestamp.
}

// ValidNodeRole reports whether role is main or worker.
func ValidNodeRole(role string) bool {
	return role == NodeRoleMain || role == NodeRoleWorker
}

// ValidNodeStatus reports whether status is a known node status.
func ValidNodeStatus(status string) bool {
	switch status {
	case NodeStatusOnline, NodeStatusOffline, NodeStatusMaintenance:
		return true
	default:
		return false
	}
}
