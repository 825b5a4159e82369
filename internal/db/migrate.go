package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/capacity"
	"github.com/cloudbsd/admin-panel/internal/models"
	"gorm.io/gorm"
)

// schemaModels lists every persisted model in dependency order.
func schemaModels() []any {
	return []any{
		&models.User{},
		&models.Permission{},
		&models.Node{},
		&models.Resource{},
		&models.LogEntry{},
		&models.License{},
	}
}

// capacityColumn pairs a legacy text capacity column with its megabyte column.
type capacityColumn struct {
	Text string
	MB   string
}

// legacyCapacityColumns maps text capacity columns of older installations to
// their normalized megabyte replacements.
var legacyCapacityColumns = []capacityColumn{
	{Text: "mem_total", MB: "mem_total_mb"},
	{Text: "mem_used", MB: "mem_used_mb"},
	{Text: "disk_total", MB: "disk_total_mb"},
	{Text: "disk_used", MB: "disk_used_mb"},
}

// Migrate runs database migrations for the current dialect. It is safe to run
// on every start.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies the schema and indexes on PostgreSQL.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errBackfill := backfillTimestamps(conn); errBackfill != nil {
		return errBackfill
	}
	return ensureSingleMainIndex(conn)
}

// migrateSQLite applies the schema on SQLite, converting legacy text capacity
// columns the first time the normalized columns appear.
func migrateSQLite(conn *gorm.DB) error {
	pending, errInspect := pendingCapacityConversions(conn)
	if errInspect != nil {
		return errInspect
	}

	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	for _, col := range pending {
		if errConvert := convertCapacityColumn(conn, col.Text, col.MB); errConvert != nil {
			return errConvert
		}
	}
	if len(pending) > 0 {
		if errAdopt := adoptLegacyRows(conn); errAdopt != nil {
			return errAdopt
		}
	}
	if errBackfill := backfillTimestamps(conn); errBackfill != nil {
		return errBackfill
	}
	return ensureSingleMainIndex(conn)
}

// sqliteTableInfo mirrors PRAGMA table_info output.
type sqliteTableInfo struct {
	Cid          int            `gorm:"column:cid"`        // Column index.
	Name         string         `gorm:"column:name"`       // Column name.
	Type         string         `gorm:"column:type"`       // Column type.
	NotNull      int            `gorm:"column:notnull"`    // Not-null flag.
	DefaultValue sql.NullString `gorm:"column:dflt_value"` // Default value string.
	PK           int            `gorm:"column:pk"`         // Primary key flag.
}

// sqliteColumns returns the column names of table, or nil when it does not exist.
func sqliteColumns(conn *gorm.DB, table string) (map[string]struct{}, error) {
	migrator := conn.Migrator()
	if migrator == nil || !migrator.HasTable(table) {
		return nil, nil
	}
	var info []sqliteTableInfo
	pragmaSQL := fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdentifier(table))
	if errQuery := conn.Raw(pragmaSQL).Scan(&info).Error; errQuery != nil {
		return nil, fmt.Errorf("db: read sqlite table info %s: %w", table, errQuery)
	}
	columns := make(map[string]struct{}, len(info))
	for _, col := range info {
		if col.Name == "" {
			continue
		}
		columns[col.Name] = struct{}{}
	}
	return columns, nil
}

// pendingCapacityConversions lists legacy text columns whose megabyte column
// does not exist yet.
func pendingCapacityConversions(conn *gorm.DB) ([]capacityColumn, error) {
	columns, err := sqliteColumns(conn, "nodes")
	if err != nil || columns == nil {
		return nil, err
	}
	var pending []capacityColumn
	for _, col := range legacyCapacityColumns {
		_, hasText := columns[col.Text]
		_, hasMB := columns[col.MB]
		if hasText && !hasMB {
			pending = append(pending, col)
		}
	}
	return pending, nil
}

// legacyCapacityRow holds one legacy text capacity value.
type legacyCapacityRow struct {
	ID    uint64         `gorm:"column:id"`
	Value sql.NullString `gorm:"column:value"`
}

// convertCapacityColumn fills mbColumn from the lossy parse of textColumn.
func convertCapacityColumn(conn *gorm.DB, textColumn, mbColumn string) error {
	var rows []legacyCapacityRow
	selectSQL := fmt.Sprintf("SELECT id, %s AS value FROM nodes", quoteSQLiteIdentifier(textColumn))
	if errQuery := conn.Raw(selectSQL).Scan(&rows).Error; errQuery != nil {
		return fmt.Errorf("db: read legacy %s: %w", textColumn, errQuery)
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if !row.Value.Valid || strings.TrimSpace(row.Value.String) == "" {
				continue
			}
			mb := capacity.Parse(row.Value.String)
			if errUpdate := tx.Table("nodes").Where("id = ?", row.ID).Update(mbColumn, mb).Error; errUpdate != nil {
				return fmt.Errorf("db: convert %s for node %d: %w", textColumn, row.ID, errUpdate)
			}
		}
		return nil
	})
}

// adoptLegacyRows runs once, together with the capacity conversion. Older
// installations had no capacity on the main node and no node on resources;
// both are attached to the main node here. Later NULL node_ids are left alone.
func adoptLegacyRows(conn *gorm.DB) error {
	var main models.Node
	errFind := conn.Where("role = ?", models.NodeRoleMain).First(&main).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil
	}
	if errFind != nil {
		return fmt.Errorf("db: query legacy main node: %w", errFind)
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		if main.CPUTotal == nil {
			seed := mainNodeSeed()
			if errUpdate := tx.Model(&main).Updates(map[string]any{
				"cpu_total":     seed.CPUTotal,
				"cpu_used":      seed.CPUUsed,
				"mem_total_mb":  seed.MemTotalMB,
				"mem_used_mb":   seed.MemUsedMB,
				"disk_total_mb": seed.DiskTotalMB,
				"disk_used_mb":  seed.DiskUsedMB,
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: fill main node capacity: %w", errUpdate)
			}
		}
		if errUpdate := tx.Model(&models.Resource{}).
			Where("node_id IS NULL").
			Update("node_id", main.ID).Error; errUpdate != nil {
			return fmt.Errorf("db: assign legacy resources: %w", errUpdate)
		}
		return nil
	})
}

// backfillTimestamps fills timestamp columns added to pre-existing rows.
func backfillTimestamps(conn *gorm.DB) error {
	statements := []string{
		"UPDATE users SET created_at = CURRENT_TIMESTAMP WHERE created_at IS NULL",
		"UPDATE users SET updated_at = created_at WHERE updated_at IS NULL",
		"UPDATE users SET language = 'en' WHERE language IS NULL OR language = ''",
		"UPDATE nodes SET created_at = CURRENT_TIMESTAMP WHERE created_at IS NULL",
		"UPDATE nodes SET updated_at = created_at WHERE updated_at IS NULL",
		"UPDATE resources SET created_at = CURRENT_TIMESTAMP WHERE created_at IS NULL",
		"UPDATE resources SET updated_at = created_at WHERE updated_at IS NULL",
		`UPDATE logs SET "timestamp" = CURRENT_TIMESTAMP WHERE "timestamp" IS NULL`,
		"UPDATE license SET updated_at = CURRENT_TIMESTAMP WHERE updated_at IS NULL",
	}
	for _, stmt := range statements {
		if errExec := conn.Exec(stmt).Error; errExec != nil {
			return fmt.Errorf("db: backfill timestamps: %w", errExec)
		}
	}
	return nil
}

// ensureSingleMainIndex allows at most one node with role main.
func ensureSingleMainIndex(conn *gorm.DB) error {
	if errIndex := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_single_main
		ON nodes (role) WHERE role = 'main'
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create single main node index: %w", errIndex)
	}
	return nil
}

// quoteSQLiteIdentifier quotes a SQLite identifier safely.
func quoteSQLiteIdentifier(name string) string {
	if name == "" {
		return "\"\""
	}
	return "\"" + strings.ReplaceAll(name, "\"", "\"\"") + "\""
}
