package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mcpchat/model"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// StatusRecord is one persisted provider status.
type StatusRecord struct {
	ID string `json:"id"`
	model.ProviderStatus
}

// StatusLog persists the provider statuses computed by the health monitor.
// The adapter layer never reads it back; it only feeds history views.
type StatusLog struct {
	db *sql.DB
}

// NewStatusLog opens (or creates) status.db in dataDir.
func NewStatusLog(dataDir string) (*StatusLog, error) {
	dbPath := filepath.Join(dataDir, "status.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Monitor checks run concurrently; one writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log := &StatusLog{db: db}

	if err := log.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return log, nil
}

func (l *StatusLog) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS provider_status (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		configured INTEGER NOT NULL,
		healthy INTEGER NOT NULL,
		error TEXT,
		checked_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_provider_status_provider ON provider_status(provider, checked_at);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return err
	}

	if err := l.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first release.
func (l *StatusLog) migrateSchema() error {
	hasModels, err := l.columnExists("provider_status", "available_models")
	if err != nil {
		return fmt.Errorf("failed to check for available_models column: %w", err)
	}

	switch {
	case !hasModels:
		_, err := l.db.Exec(`ALTER TABLE provider_status ADD COLUMN available_models TEXT DEFAULT '[]'`)
		if err != nil {
			return fmt.Errorf("failed to add available_models column: %w", err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (l *StatusLog) columnExists(tableName, columnName string) (bool, error) {
	rows, err := l.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var dataType string
		var notNull int
		var defaultValue any
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

// Record appends status to the log.
func (l *StatusLog) Record(ctx context.Context, status model.ProviderStatus) error {
	models := status.AvailableModels
	if models == nil {
		models = []string{}
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("failed to marshal models: %w", err)
	}

	checkedAt := status.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO provider_status (id, provider, configured, healthy, error, checked_at, available_models)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), status.ProviderID, status.Configured, status.Healthy,
		status.Error, checkedAt.UTC(), string(modelsJSON))
	if err != nil {
		return fmt.Errorf("failed to record %s status: %w", status.ProviderID, err)
	}
	return nil
}

// History returns up to limit statuses of providerID, newest first. A
// non-positive limit returns everything.
func (l *StatusLog) History(ctx context.Context, providerID string, limit int) ([]StatusRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, provider, configured, healthy, COALESCE(error, ''), checked_at, COALESCE(available_models, '[]')
		FROM provider_status
		WHERE provider = ?
		ORDER BY checked_at DESC, rowid DESC
		LIMIT ?
	`, providerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := []StatusRecord{}
	for rows.Next() {
		var rec StatusRecord
		var modelsJSON string
		if err := rows.Scan(&rec.ID, &rec.ProviderID, &rec.Configured, &rec.Healthy,
			&rec.Error, &rec.CheckedAt, &modelsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		if err := json.Unmarshal([]byte(modelsJSON), &rec.AvailableModels); err != nil || rec.AvailableModels == nil {
			rec.AvailableModels = []string{}
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Prune deletes statuses checked before cutoff and returns how many were
// removed.
func (l *StatusLog) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx, `DELETE FROM provider_status WHERE checked_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune status log: %w", err)
	}
	return result.RowsAffected()
}

func (l *StatusLog) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
