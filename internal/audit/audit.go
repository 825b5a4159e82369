// Package audit appends and lists entries in the logs table.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/db"
	"github.com/cloudbsd/admin-panel/internal/metrics"
	"github.com/cloudbsd/admin-panel/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Action codes written to the log.
const (
	ActionLoginSuccess    = "LOGIN_SUCCESS"
	ActionLoginFailure    = "LOGIN_FAILURE"
	ActionUserCreate      = "USER_CREATE"
	ActionUserDelete      = "USER_DELETE"
	ActionUserPermissions = "USER_PERMISSIONS_UPDATE"
	ActionTOTPEnable      = "TOTP_ENABLE"
	ActionTOTPDisable     = "TOTP_DISABLE"
	ActionNodeCreate      = "NODE_CREATE"
	ActionNodeUpdate      = "NODE_UPDATE"
	ActionNodeDelete      = "NODE_DELETE"
	ActionResourceCreate  = "RESOURCE_CREATE"
	ActionResourceUpdate  = "RESOURCE_UPDATE"
	ActionResourceDelete  = "RESOURCE_DELETE"
	ActionLicenseUpdate   = "LICENSE_UPDATE"
)

// SystemUsername labels entries that have no (remaining) user.
const SystemUsername = "System"

// MaxListLimit caps List results.
const MaxListLimit = 100

// Log is the audit trail backed by the logs table.
type Log struct {
	db *gorm.DB
}

// New returns an audit log writing through conn.
func New(conn *gorm.DB) *Log {
	return &Log{db: conn}
}

// Record appends an entry. Failures are logged and counted, never returned.
func (l *Log) Record(ctx context.Context, userID *uint64, action, details string) {
	if l == nil || l.db == nil {
		metrics.AuditAppendFailures.Inc()
		log.WithField("action", action).Error("audit: no database configured")
		return
	}
	entry := models.LogEntry{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
	}
	if details != "" {
		entry.Details = &details
	}
	// The entry is written even if the request that triggered it went away.
	if errCreate := l.db.WithContext(context.WithoutCancel(ctx)).Create(&entry).Error; errCreate != nil {
		metrics.AuditAppendFailures.Inc()
		log.WithError(errCreate).WithFields(log.Fields{
			"action":  action,
			"details": details,
		}).Error("audit: append failed")
	}
}

// Entry is a log row joined with its user's name.
type Entry struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    *uint64   `json:"user_id"`
	Action    string    `json:"action"`
	Details   *string   `json:"details"`
	Username  string    `json:"username"`
}

// entryRow is the scan target for the joined query.
type entryRow struct {
	ID        uint64    `gorm:"column:id"`
	Timestamp time.Time `gorm:"column:timestamp"`
	UserID    *uint64   `gorm:"column:user_id"`
	Action    string    `gorm:"column:action"`
	Details   *string   `gorm:"column:details"`
	Username  *string   `gorm:"column:username"`
}

// ListOptions filters List.
type ListOptions struct {
	Limit  int    // 1..MaxListLimit; other values mean MaxListLimit.
	Search string // case-insensitive match on action or details.
}

// List returns the newest entries first.
func (l *Log) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := l.db.WithContext(ctx).
		Table("logs").
		Select("logs.id, logs.timestamp, logs.user_id, logs.action, logs.details, users.username").
		Joins("LEFT JOIN users ON logs.user_id = users.id")
	if term := strings.TrimSpace(opts.Search); term != "" {
		pattern := db.ContainsPattern(l.db, term)
		q = q.Where(
			"("+db.CaseInsensitiveLikeExpr(l.db, "logs.action")+" OR "+db.CaseInsensitiveLikeExpr(l.db, "logs.details")+")",
			pattern, pattern,
		)
	}

	var rows []entryRow
	if errFind := q.Order("logs.timestamp DESC").Order("logs.id DESC").Limit(limit).Scan(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("audit: list: %w", errFind)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		username := SystemUsername
		if row.Username != nil && *row.Username != "" {
			username = *row.Username
		}
		entries = append(entries, Entry{
			ID:        row.ID,
			Timestamp: row.Timestamp,
			UserID:    row.UserID,
			Action:    row.Action,
			Details:   row.Details,
			Username:  username,
		})
	}
	return entries, nil
}
