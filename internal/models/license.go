package models

import (
	"time"

	"gorm.io/datatypes"
)

// License is the singleton licensing record.
type License struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	LicenseKey  string `gorm:"type:text;not null"`                // Registered key.
	LicenseType string `gorm:"type:text;not null;default:trial"`  // trial, standard or enterprise.
	Status      string `gorm:"type:text;not null;default:active"` // License status.

	NodesLimit      int `gorm:"not null;default:0"`                  // Maximum nodes.
	VMsLimit        int `gorm:"column:vms_limit;not null;default:0"` // Maximum VMs.
	ContainersLimit int `gorm:"not null;default:0"`                  // Maximum containers.
	JailsLimit      int `gorm:"not null;default:0"`                  // Maximum jails.

	ExpiryDate   time.Time      `gorm:"not null"`  // Expiration time.
	SupportTier  string         `gorm:"type:text"` // Support level.
	RegisteredTo string         `gorm:"type:text"` // Licensee name.
	Features     datatypes.JSON `gorm:"type:json"` // Enabled feature list.

	UpdatedAt time.Time `gorm:"autoUpdateTime"` // Last update timestamp.
}

// TableName keeps the singular table name used by existing installations.
func (License) TableName() string { return "license" }

// LicenseTier describes the limits and features granted by a license type.
type LicenseTier struct {
	Type            string
	NodesLimit      int
	VMsLimit        int
	ContainersLimit int
	JailsLimit      int
	SupportTier     string
	Features        []string
}

// baseLicenseFeatures are included in every tier.
var baseLicenseFeatures = []string{"clustering", "api_access", "live_migration"}

// Known license tiers.
var (
	LicenseTierTrial = LicenseTier{
		Type:            "trial",
		NodesLimit:      5,
		VMsLimit:        20,
		ContainersLimit: 100,
		JailsLimit:      50,
		SupportTier:     "community",
		Features:        baseLicenseFeatures,
	}
	LicenseTierStandard = LicenseTier{
		Type:            "standard",
		NodesLimit:      25,
		VMsLimit:        100,
		ContainersLimit: 500,
		JailsLimit:      200,
		SupportTier:     "business",
		Features:        append(append([]string{}, baseLicenseFeatures...), "advanced_backup"),
	}
	LicenseTierEnterprise = LicenseTier{
		Type:            "enterprise",
		NodesLimit:      99999,
		VMsLimit:        99999,
		ContainersLimit: 99999,
		JailsLimit:      99999,
		SupportTier:     "24/7",
		Features:        append(append([]string{}, baseLicenseFeatures...), "high_availability", "advanced_backup", "dedicated_support"),
	}
)
