// Package license validates license keys and maintains the singleton
// license row. Keys are checked by format only.
package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/models"
	"gorm.io/gorm"
)

// KeyPrefix starts every valid license key.
const KeyPrefix = "CBSD-"

// registeredTo is stored for every applied key.
const registeredTo = "Licensed Customer"

// Validate checks key and returns the tier it unlocks.
func Validate(key string) (models.LicenseTier, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.LicenseTier{}, apperr.InvalidInput("License key is required")
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		return models.LicenseTier{}, apperr.InvalidInput("Invalid license key format")
	}
	switch {
	case strings.Contains(key, "ENT"):
		return models.LicenseTierEnterprise, nil
	case strings.Contains(key, "STD"):
		return models.LicenseTierStandard, nil
	default:
		return models.LicenseTierTrial, nil
	}
}

// Usage counts what the license limits.
type Usage struct {
	Nodes      int64 `json:"nodes"`
	VMs        int64 `json:"vms"`
	Containers int64 `json:"containers"`
	Jails      int64 `json:"jails"`
}

// View is the API shape of the license.
type View struct {
	ID              uint64    `json:"id"`
	LicenseKey      string    `json:"license_key"`
	LicenseType     string    `json:"license_type"`
	Status          string    `json:"status"`
	NodesLimit      int       `json:"nodes_limit"`
	VMsLimit        int       `json:"vms_limit"`
	ContainersLimit int       `json:"containers_limit"`
	JailsLimit      int       `json:"jails_limit"`
	ExpiryDate      time.Time `json:"expiry_date"`
	SupportTier     string    `json:"support_tier"`
	RegisteredTo    string    `json:"registered_to"`
	Features        []string  `json:"features"`
	UpdatedAt       time.Time `json:"updated_at"`
	Usage           *Usage    `json:"usage,omitempty"`
}

// Service reads and replaces the license.
type Service struct {
	db    *gorm.DB
	audit *audit.Log
	nowFn func() time.Time
}

// NewService constructs a Service.
func NewService(conn *gorm.DB, auditLog *audit.Log) *Service {
	return &Service{db: conn, audit: auditLog, nowFn: time.Now}
}

// Get returns the license with current usage, or nil when none is stored.
func (s *Service) Get(ctx context.Context) (*View, error) {
	var row models.License
	errFind := s.db.WithContext(ctx).Order("id ASC").First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, apperr.Internal(fmt.Errorf("license: load: %w", errFind))
	}
	usage, errUsage := s.usage(ctx)
	if errUsage != nil {
		return nil, errUsage
	}
	view := newView(row)
	view.Usage = &usage
	return &view, nil
}

// Apply validates key and overwrites the license with its tier. Expiry is
// one year from now.
func (s *Service) Apply(ctx context.Context, actor *uint64, key string) (*View, error) {
	tier, errValidate := Validate(key)
	if errValidate != nil {
		return nil, errValidate
	}
	features, errMarshal := json.Marshal(tier.Features)
	if errMarshal != nil {
		return nil, apperr.Internal(fmt.Errorf("license: encode features: %w", errMarshal))
	}

	var row models.License
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := tx.Order("id ASC").First(&row).Error
		if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("license: load: %w", errFind)
		}
		row.LicenseKey = strings.TrimSpace(key)
		row.LicenseType = tier.Type
		row.Status = "active"
		row.NodesLimit = tier.NodesLimit
		row.VMsLimit = tier.VMsLimit
		row.ContainersLimit = tier.ContainersLimit
		row.JailsLimit = tier.JailsLimit
		row.ExpiryDate = s.nowFn().UTC().AddDate(1, 0, 0)
		row.SupportTier = tier.SupportTier
		row.RegisteredTo = registeredTo
		row.Features = features
		if errSave := tx.Save(&row).Error; errSave != nil {
			return fmt.Errorf("license: save: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, apperr.Internal(errTx)
	}
	s.audit.Record(ctx, actor, audit.ActionLicenseUpdate, "Updated license to "+tier.Type)
	view := newView(row)
	return &view, nil
}

func (s *Service) usage(ctx context.Context) (Usage, error) {
	var usage Usage
	if errCount := s.db.WithContext(ctx).Model(&models.Node{}).Count(&usage.Nodes).Error; errCount != nil {
		return Usage{}, apperr.Internal(fmt.Errorf("license: count nodes: %w", errCount))
	}
	counts := []struct {
		kind string
		dst  *int64
	}{
		{"vms", &usage.VMs},
		{"containers", &usage.Containers},
		{"jails", &usage.Jails},
	}
	for _, c := range counts {
		if errCount := s.db.WithContext(ctx).Model(&models.Resource{}).Where("type = ?", c.kind).Count(c.dst).Error; errCount != nil {
			return Usage{}, apperr.Internal(fmt.Errorf("license: count %s: %w", c.kind, errCount))
		}
	}
	return usage, nil
}

func newView(row models.License) View {
	features := []string{}
	if len(row.Features) > 0 {
		// A corrupt column renders as no features.
		_ = json.Unmarshal(row.Features, &features)
	}
	return View{
		ID:              row.ID,
		LicenseKey:      row.LicenseKey,
		LicenseType:     row.LicenseType,
		Status:          row.Status,
		NodesLimit:      row.NodesLimit,
		VMsLimit:        row.VMsLimit,
		ContainersLimit: row.ContainersLimit,
		JailsLimit:      row.JailsLimit,
		ExpiryDate:      row.ExpiryDate,
		SupportTier:     row.SupportTier,
		RegisteredTo:    row.RegisteredTo,
		Features:        features,
		UpdatedAt:       row.UpdatedAt,
	}
}
