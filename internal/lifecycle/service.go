// Package lifecycle manages VM, container and jail records and their
// start/stop/restart transitions. Transitions only change the stored status.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/metrics"
	"github.com/cloudbsd/admin-panel/internal/models"
	"gorm.io/gorm"
)

// Notifier is told about every committed resource change.
type Notifier interface {
	ResourceUpdated(kind string)
}

// Service owns resource rows.
type Service struct {
	db     *gorm.DB
	audit  *audit.Log
	notify Notifier
}

// NewService builds a Service. notify may be nil.
func NewService(conn *gorm.DB, auditLog *audit.Log, notify Notifier) *Service {
	return &Service{db: conn, audit: auditLog, notify: notify}
}

// Input carries the writable fields of a resource.
type Input struct {
	Name   string
	Image  *string
	IP     *string
	CPU    *int
	Memory *string
	Disk   *string
	NodeID *uint64
}

// View is a resource joined with the name of its node.
type View struct {
	ID        uint64    `gorm:"column:id" json:"id"`
	Type      string    `gorm:"column:type" json:"type"`
	Name      string    `gorm:"column:name" json:"name"`
	Status    string    `gorm:"column:status" json:"status"`
	Image     *string   `gorm:"column:image" json:"image"`
	IP        *string   `gorm:"column:ip" json:"ip"`
	CPU       *int      `gorm:"column:cpu" json:"cpu"`
	Memory    *string   `gorm:"column:memory" json:"memory"`
	Disk      *string   `gorm:"column:disk" json:"disk"`
	NodeID    *uint64   `gorm:"column:node_id" json:"node_id"`
	NodeName  *string   `gorm:"column:node_name" json:"node_name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (s *Service) viewQuery(ctx context.Context, kind Kind) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("resources").
		Select("resources.id, resources.type, resources.name, resources.status, resources.image, resources.ip, " +
			"resources.cpu, resources.memory, resources.disk, resources.node_id, nodes.name AS node_name, " +
			"resources.created_at, resources.updated_at").
		Joins("LEFT JOIN nodes ON resources.node_id = nodes.id").
		Where("resources.type = ?", kind.String())
}

// List returns every resource of kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]View, error) {
	var rows []View
	if errFind := s.viewQuery(ctx, kind).Order("resources.id ASC").Scan(&rows).Error; errFind != nil {
		return nil, apperr.Internal(fmt.Errorf("lifecycle: list %s: %w", kind, errFind))
	}
	if rows == nil {
		rows = []View{}
	}
	return rows, nil
}

// Get returns the resource (id, kind).
func (s *Service) Get(ctx context.Context, kind Kind, id uint64) (View, error) {
	var rows []View
	if errFind := s.viewQuery(ctx, kind).Where("resources.id = ?", id).Limit(1).Scan(&rows).Error; errFind != nil {
		return View{}, apperr.Internal(fmt.Errorf("lifecycle: get %s %d: %w", kind, id, errFind))
	}
	if len(rows) == 0 {
		return View{}, errResourceNotFound()
	}
	return rows[0], nil
}

// Create inserts a resource in the stopped state of its kind.
func (s *Service) Create(ctx context.Context, actor *uint64, kind Kind, in Input) (models.Resource, error) {
	in, errValidate := s.validate(ctx, in)
	if errValidate != nil {
		return models.Resource{}, errValidate
	}
	res := models.Resource{
		Type:   kind.String(),
		Name:   in.Name,
		Status: kind.StoppedStatus(),
		Image:  in.Image,
		IP:     in.IP,
		CPU:    in.CPU,
		Memory: in.Memory,
		Disk:   in.Disk,
		NodeID: in.NodeID,
	}
	if errCreate := s.db.WithContext(ctx).Create(&res).Error; errCreate != nil {
		return models.Resource{}, apperr.Internal(fmt.Errorf("lifecycle: create %s: %w", kind, errCreate))
	}
	s.committed(ctx, actor, kind, audit.ActionResourceCreate, "create",
		fmt.Sprintf("Created %s %s", kind, res.Name))
	return res, nil
}

// Update overwrites the writable fields of (id, kind). Status is kept.
func (s *Service) Update(ctx context.Context, actor *uint64, kind Kind, id uint64, in Input) error {
	in, errValidate := s.validate(ctx, in)
	if errValidate != nil {
		return errValidate
	}
	result := s.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("id = ? AND type = ?", id, kind.String()).
		Updates(map[string]any{
			"name":       in.Name,
			"image":      in.Image,
			"ip":         in.IP,
			"cpu":        in.CPU,
			"memory":     in.Memory,
			"disk":       in.Disk,
			"node_id":    in.NodeID,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return apperr.Internal(fmt.Errorf("lifecycle: update %s %d: %w", kind, id, result.Error))
	}
	if result.RowsAffected == 0 {
		return errResourceNotFound()
	}
	s.committed(ctx, actor, kind, audit.ActionResourceUpdate, "update",
		fmt.Sprintf("Updated %s %s (ID: %d)", kind, in.Name, id))
	return nil
}

// Delete removes (id, kind).
func (s *Service) Delete(ctx context.Context, actor *uint64, kind Kind, id uint64) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND type = ?", id, kind.String()).
		Delete(&models.Resource{})
	if result.Error != nil {
		return apperr.Internal(fmt.Errorf("lifecycle: delete %s %d: %w", kind, id, result.Error))
	}
	if result.RowsAffected == 0 {
		return errResourceNotFound()
	}
	s.committed(ctx, actor, kind, audit.ActionResourceDelete, "delete",
		fmt.Sprintf("Deleted %s %d", kind, id))
	return nil
}

// Apply runs action against (id, kind) and returns the new status.
func (s *Service) Apply(ctx context.Context, actor *uint64, kind Kind, id uint64, action Action) (string, error) {
	next := NextStatus(kind, action)
	result := s.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("id = ? AND type = ?", id, kind.String()).
		Updates(map[string]any{
			"status":     next,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return "", apperr.Internal(fmt.Errorf("lifecycle: %s %s %d: %w", action, kind, id, result.Error))
	}
	if result.RowsAffected == 0 {
		return "", errResourceNotFound()
	}
	s.committed(ctx, actor, kind, action.auditAction(), string(action), ActionMessage(kind, id, action))
	return next, nil
}

// ActionMessage describes a completed action ("started vms 3").
func ActionMessage(kind Kind, id uint64, action Action) string {
	return fmt.Sprintf("%s %s %d", action.pastTense(), kind, id)
}

func (s *Service) committed(ctx context.Context, actor *uint64, kind Kind, auditAction, metricAction, details string) {
	metrics.ResourceActions.WithLabelValues(kind.String(), metricAction).Inc()
	s.audit.Record(ctx, actor, auditAction, details)
	if s.notify != nil {
		s.notify.ResourceUpdated(kind.String())
	}
}

// validate trims the input and checks the referenced node.
func (s *Service) validate(ctx context.Context, in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, apperr.InvalidInput("Name is required")
	}
	in.Image = trimOptional(in.Image)
	in.IP = trimOptional(in.IP)
	in.Memory = trimOptional(in.Memory)
	in.Disk = trimOptional(in.Disk)
	if in.CPU != nil && *in.CPU < 0 {
		return in, apperr.InvalidInput("CPU must not be negative")
	}
	if in.NodeID != nil {
		var node models.Node
		errFind := s.db.WithContext(ctx).Select("id").First(&node, *in.NodeID).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return in, apperr.InvalidInput("Node not found")
		}
		if errFind != nil {
			return in, apperr.Internal(fmt.Errorf("lifecycle: check node %d: %w", *in.NodeID, errFind))
		}
	}
	return in, nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func errResourceNotFound() error {
	return apperr.NotFound("Resource not found")
}
