package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudbsd/admin-panel/internal/capacity"
	"github.com/cloudbsd/admin-panel/internal/models"
	"github.com/cloudbsd/admin-panel/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Seed inserts the bootstrap rows that are missing. Every step checks for
// existing data, so running it again only restores what was deleted.
func Seed(conn *gorm.DB, demo bool) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	mainNode, errMain := ensureMainNode(conn)
	if errMain != nil {
		return errMain
	}
	if demo {
		if errWorkers := ensureDemoWorkers(conn); errWorkers != nil {
			return errWorkers
		}
	}
	if errAdmin := ensureAdminUser(conn); errAdmin != nil {
		return errAdmin
	}
	if errLicense := ensureTrialLicense(conn); errLicense != nil {
		return errLicense
	}
	if demo {
		if errResources := ensureDemoResources(conn, mainNode.ID); errResources != nil {
			return errResources
		}
	}
	return nil
}

// ensureMainNode creates the main node when none exists.
func ensureMainNode(conn *gorm.DB) (*models.Node, error) {
	var node models.Node
	errFind := conn.Where("role = ?", models.NodeRoleMain).First(&node).Error
	if errFind == nil {
		return &node, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("db: query main node: %w", errFind)
	}

	node = mainNodeSeed()
	if errCreate := conn.Create(&node).Error; errCreate != nil {
		return nil, fmt.Errorf("db: create main node: %w", errCreate)
	}
	log.Infof("seeded main node %q", node.Name)
	return &node, nil
}

func mainNodeSeed() models.Node {
	return models.Node{
		Name:        "CloudBSD Main",
		Role:        models.NodeRoleMain,
		Status:      models.NodeStatusOnline,
		IP:          "127.0.0.1",
		CPUTotal:    intPtr(8),
		CPUUsed:     intPtr(2),
		MemTotalMB:  mbPtr("32GB"),
		MemUsedMB:   mbPtr("8GB"),
		DiskTotalMB: mbPtr("500GB"),
		DiskUsedMB:  mbPtr("120GB"),
	}
}

// ensureDemoWorkers seeds decorative worker nodes when no worker exists.
func ensureDemoWorkers(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Node{}).Where("role = ?", models.NodeRoleWorker).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count worker nodes: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	workers := []models.Node{
		demoWorker("bsd-worker-01", models.NodeStatusOnline, "192.168.1.50", 16, 4, "64GB", "12GB", "1TB", "200GB"),
		demoWorker("bsd-worker-02", models.NodeStatusOnline, "192.168.1.51", 4, 1, "8GB", "2GB", "250GB", "50GB"),
		demoWorker("bsd-worker-03", models.NodeStatusOffline, "192.168.1.52", 8, 0, "16GB", "0GB", "500GB", "0GB"),
	}
	if errCreate := conn.Create(&workers).Error; errCreate != nil {
		return fmt.Errorf("db: create demo workers: %w", errCreate)
	}
	return nil
}

func demoWorker(name, status, ip string, cpuTotal, cpuUsed int, memTotal, memUsed, diskTotal, diskUsed string) models.Node {
	return models.Node{
		Name:        name,
		Role:        models.NodeRoleWorker,
		Status:      status,
		IP:          ip,
		CPUTotal:    intPtr(cpuTotal),
		CPUUsed:     intPtr(cpuUsed),
		MemTotalMB:  mbPtr(memTotal),
		MemUsedMB:   mbPtr(memUsed),
		DiskTotalMB: mbPtr(diskTotal),
		DiskUsedMB:  mbPtr(diskUsed),
	}
}

// DefaultAdminUsername is the account created on an empty user table.
const DefaultAdminUsername = "admin"

// defaultAdminPassword is the initial password of the seeded admin.
const defaultAdminPassword = "admin"

// ensureAdminUser creates admin/admin when the user table is empty.
func ensureAdminUser(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.User{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count users: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	hash, errHash := security.HashPassword(defaultAdminPassword)
	if errHash != nil {
		return fmt.Errorf("db: hash admin password: %w", errHash)
	}
	admin := models.User{
		Username:     DefaultAdminUsername,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Language:     models.DefaultLanguage,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("db: create admin user: %w", errCreate)
	}
	log.Warnf("seeded default %q account; change its password", DefaultAdminUsername)
	return nil
}

// trialPeriod is how long the seeded trial license lasts.
const trialPeriod = 30 * 24 * time.Hour

// ensureTrialLicense seeds the singleton license row once.
func ensureTrialLicense(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.License{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count license: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	tier := models.LicenseTierTrial
	features, errMarshal := json.Marshal(tier.Features)
	if errMarshal != nil {
		return fmt.Errorf("db: encode license features: %w", errMarshal)
	}
	license := models.License{
		LicenseKey:      "TRIAL",
		LicenseType:     tier.Type,
		Status:          "active",
		NodesLimit:      tier.NodesLimit,
		VMsLimit:        tier.VMsLimit,
		ContainersLimit: tier.ContainersLimit,
		JailsLimit:      tier.JailsLimit,
		ExpiryDate:      time.Now().UTC().Add(trialPeriod),
		SupportTier:     tier.SupportTier,
		RegisteredTo:    "Trial User",
		Features:        features,
	}
	if errCreate := conn.Create(&license).Error; errCreate != nil {
		return fmt.Errorf("db: create trial license: %w", errCreate)
	}
	return nil
}

// ensureDemoResources seeds decorative resources when the table is empty.
func ensureDemoResources(conn *gorm.DB, mainID uint64) error {
	var count int64
	if errCount := conn.Model(&models.Resource{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count resources: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	worker1 := nodeIDByName(conn, "bsd-worker-01", mainID)
	worker2 := nodeIDByName(conn, "bsd-worker-02", mainID)

	resources := []models.Resource{
		{Type: "vms", Name: "web-server", Status: "running", CPU: intPtr(1), Memory: strPtr("2GB"), Disk: strPtr("20GB"), NodeID: &mainID},
		{Type: "vms", Name: "db-server", Status: "stopped", CPU: intPtr(2), Memory: strPtr("4GB"), Disk: strPtr("50GB"), NodeID: &mainID},
		{Type: "containers", Name: "nginx-proxy", Status: "up", Image: strPtr("nginx:latest"), Disk: strPtr("1GB"), NodeID: &worker1},
		{Type: "containers", Name: "redis-cache", Status: "exited", Image: strPtr("redis:6"), Disk: strPtr("2GB"), NodeID: &worker1},
		{Type: "jails", Name: "app-jail", Status: "active", IP: strPtr("192.168.1.10"), CPU: intPtr(1), Memory: strPtr("1GB"), Disk: strPtr("10GB"), NodeID: &worker2},
		{Type: "containers", Name: "container-worker", Status: "up", Image: strPtr("fedora:latest"), Disk: strPtr("5GB"), NodeID: &worker1},
		{Type: "containers", Name: "postgres-db", Status: "up", Image: strPtr("postgres:15-alpine"), Disk: strPtr("10GB"), NodeID: &worker2},
		{Type: "containers", Name: "monitoring-agent", Status: "up", Image: strPtr("prometheus:latest"), Disk: strPtr("5GB"), NodeID: &worker1},
		{Type: "containers", Name: "logging-sidecar", Status: "up", Image: strPtr("fluentd:latest"), Disk: strPtr("1GB"), NodeID: &worker2},
	}
	if errCreate := conn.Create(&resources).Error; errCreate != nil {
		return fmt.Errorf("db: create demo resources: %w", errCreate)
	}
	return nil
}

// nodeIDByName returns the node id for name, or fallback when it is missing.
func nodeIDByName(conn *gorm.DB, name string, fallback uint64) uint64 {
	var node models.Node
	if errFind := conn.Select("id").Where("name = ?", name).First(&node).Error; errFind != nil {
		return fallback
	}
	return node.ID
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func mbPtr(v string) *int64 {
	mb := capacity.Parse(v)
	return &mb
}
