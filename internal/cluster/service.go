// Package cluster manages cluster nodes and aggregates their capacity.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/apperr"
	"github.com/cloudbsd/admin-panel/internal/audit"
	"github.com/cloudbsd/admin-panel/internal/capacity"
	"github.com/cloudbsd/admin-panel/internal/db"
	"github.com/cloudbsd/admin-panel/internal/models"
	"gorm.io/gorm"
)

// Service owns node rows.
type Service struct {
	db    *gorm.DB
	audit *audit.Log
}

// NewService constructs a Service.
func NewService(conn *gorm.DB, auditLog *audit.Log) *Service {
	return &Service{db: conn, audit: auditLog}
}

// Input is the writable shape of a node. Capacities are display strings
// such as "32GB"; empty means unknown.
type Input struct {
	Name      string
	Role      string
	Status    string
	IP        string
	CPUTotal  *int
	CPUUsed   *int
	MemTotal  string
	MemUsed   string
	DiskTotal string
	DiskUsed  string
}

// View is the API shape of a node.
type View struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	IP        string    `json:"ip"`
	CPUTotal  *int      `json:"cpu_total"`
	CPUUsed   *int      `json:"cpu_used"`
	MemTotal  *string   `json:"mem_total"`
	MemUsed   *string   `json:"mem_used"`
	DiskTotal *string   `json:"disk_total"`
	DiskUsed  *string   `json:"disk_used"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewView renders node for the API.
func NewView(node models.Node) View {
	return View{
		ID:        node.ID,
		Name:      node.Name,
		Role:      node.Role,
		Status:    node.Status,
		IP:        node.IP,
		CPUTotal:  node.CPUTotal,
		CPUUsed:   node.CPUUsed,
		MemTotal:  capacity.FormatPtr(node.MemTotalMB),
		MemUsed:   capacity.FormatPtr(node.MemUsedMB),
		DiskTotal: capacity.FormatPtr(node.DiskTotalMB),
		DiskUsed:  capacity.FormatPtr(node.DiskUsedMB),
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
}

// List returns the main node first, then workers by name.
func (s *Service) List(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	if errFind := s.db.WithContext(ctx).Order("role DESC").Order("name ASC").Find(&nodes).Error; errFind != nil {
		return nil, apperr.Internal(fmt.Errorf("cluster: list nodes: %w", errFind))
	}
	return nodes, nil
}

// Get returns node id.
func (s *Service) Get(ctx context.Context, id uint64) (models.Node, error) {
	return s.load(ctx, s.db, id)
}

// Stats aggregates the capacity of every node.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	nodes, errList := s.List(ctx)
	if errList != nil {
		return Stats{}, errList
	}
	return ComputeStats(nodes), nil
}

// Create adds a node. Role defaults to worker and status to online.
func (s *Service) Create(ctx context.Context, actor *uint64, in Input) (models.Node, error) {
	node := models.Node{}
	if errApply := applyInput(&node, in, models.NodeRoleWorker, models.NodeStatusOnline); errApply != nil {
		return models.Node{}, errApply
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if node.Role == models.NodeRoleMain {
			if errMain := ensureNoOtherMain(tx, 0); errMain != nil {
				return errMain
			}
		}
		return tx.Create(&node).Error
	})
	if errTx != nil {
		return models.Node{}, translateWriteError(errTx)
	}
	s.audit.Record(ctx, actor, audit.ActionNodeCreate, fmt.Sprintf("Created node %s with role %s", node.Name, node.Role))
	return node, nil
}

// Update overwrites node id. Empty role or status keep their current values.
func (s *Service) Update(ctx context.Context, actor *uint64, id uint64, in Input) (models.Node, error) {
	var node models.Node
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, errLoad := s.load(ctx, tx, id)
		if errLoad != nil {
			return errLoad
		}
		node = current
		if errApply := applyInput(&node, in, current.Role, current.Status); errApply != nil {
			return errApply
		}
		if current.Role == models.NodeRoleMain && node.Role != models.NodeRoleMain {
			return apperr.Conflict("The main node cannot be demoted", nil)
		}
		if node.Role == models.NodeRoleMain && current.Role != models.NodeRoleMain {
			if errMain := ensureNoOtherMain(tx, id); errMain != nil {
				return errMain
			}
		}
		return tx.Save(&node).Error
	})
	if errTx != nil {
		return models.Node{}, translateWriteError(errTx)
	}
	s.audit.Record(ctx, actor, audit.ActionNodeUpdate, fmt.Sprintf("Updated node %s (ID: %d)", node.Name, id))
	return node, nil
}

// Delete removes node id after detaching its resources. The main node cannot
// be deleted.
func (s *Service) Delete(ctx context.Context, actor *uint64, id uint64) error {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, errLoad := s.load(ctx, tx, id)
		if errLoad != nil {
			return errLoad
		}
		if node.Role == models.NodeRoleMain {
			return apperr.Conflict("The main node cannot be deleted", nil)
		}
		if errDetach := tx.Model(&models.Resource{}).Where("node_id = ?", id).Update("node_id", nil).Error; errDetach != nil {
			return fmt.Errorf("cluster: detach resources: %w", errDetach)
		}
		if errDelete := tx.Delete(&models.Node{}, id).Error; errDelete != nil {
			return fmt.Errorf("cluster: delete node: %w", errDelete)
		}
		return nil
	})
	if errTx != nil {
		return translateWriteError(errTx)
	}
	s.audit.Record(ctx, actor, audit.ActionNodeDelete, fmt.Sprintf("Deleted node ID: %d", id))
	return nil
}

func (s *Service) load(ctx context.Context, conn *gorm.DB, id uint64) (models.Node, error) {
	var node models.Node
	errFind := conn.WithContext(ctx).First(&node, id).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Node{}, apperr.NotFound("Node not found")
	}
	if errFind != nil {
		return models.Node{}, apperr.Internal(fmt.Errorf("cluster: load node %d: %w", id, errFind))
	}
	return node, nil
}

// applyInput validates in and writes it onto node.
func applyInput(node *models.Node, in Input, defaultRole, defaultStatus string) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.InvalidInput("Name is required")
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = defaultRole
	}
	if !models.ValidNodeRole(role) {
		return apperr.InvalidInput("Invalid node role")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = defaultStatus
	}
	if !models.ValidNodeStatus(status) {
		return apperr.InvalidInput("Invalid node status")
	}
	if (in.CPUTotal != nil && *in.CPUTotal < 0) || (in.CPUUsed != nil && *in.CPUUsed < 0) {
		return apperr.InvalidInput("CPU counts must not be negative")
	}

	sizes := []struct {
		field string
		raw   string
		dst   **int64
	}{
		{"mem_total", in.MemTotal, &node.MemTotalMB},
		{"mem_used", in.MemUsed, &node.MemUsedMB},
		{"disk_total", in.DiskTotal, &node.DiskTotalMB},
		{"disk_used", in.DiskUsed, &node.DiskUsedMB},
	}
	for _, size := range sizes {
		mb, errParse := capacity.ParseStrict(size.raw)
		if errParse != nil {
			return apperr.InvalidInput(fmt.Sprintf("Invalid %s: use a value like 32GB", size.field))
		}
		*size.dst = mb
	}

	node.Name = name
	node.Role = role
	node.Status = status
	node.IP = strings.TrimSpace(in.IP)
	node.CPUTotal = in.CPUTotal
	node.CPUUsed = in.CPUUsed
	return nil
}

func ensureNoOtherMain(tx *gorm.DB, exceptID uint64) error {
	var count int64
	if errCount := tx.Model(&models.Node{}).
		Where("role = ? AND id <> ?", models.NodeRoleMain, exceptID).
		Count(&count).Error; errCount != nil {
		return fmt.Errorf("cluster: count main nodes: %w", errCount)
	}
	if count > 0 {
		return apperr.Conflict("A main node already exists", nil)
	}
	return nil
}

func translateWriteError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("Node name already exists", err)
	}
	return apperr.Internal(err)
}
