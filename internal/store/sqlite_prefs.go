package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLitePreferences keeps the tracking flag in a device-local SQLite file
// (modernc.org/sqlite, no CGO) so it survives restarts without a round trip
// to the backend.
type SQLitePreferences struct {
	db *sql.DB
}

// NewSQLitePreferences opens (or creates) the preference file at path
func NewSQLitePreferences(path string) (*SQLitePreferences, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create preferences directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preferences database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tracking_preferences (
		agent_id   TEXT PRIMARY KEY,
		enabled    INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create preferences table: %w", err)
	}
	return &SQLitePreferences{db: db}, nil
}

// Close releases the database handle
func (p *SQLitePreferences) Close() error {
	return p.db.Close()
}

// TrackingEnabled reads the flag; agents without a row are off
func (p *SQLitePreferences) TrackingEnabled(ctx context.Context, agentID string) (bool, error) {
	var enabled int
	err := p.db.QueryRowContext(ctx,
		`SELECT enabled FROM tracking_preferences WHERE agent_id = ?`, agentID,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read tracking preference: %w", err)
	}
	return enabled == 1, nil
}

// SetTrackingEnabled upserts the flag
func (p *SQLitePreferences) SetTrackingEnabled(ctx context.Context, agentID string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO tracking_preferences (agent_id, enabled, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		agentID, v, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write tracking preference: %w", err)
	}
	return nil
}

// TrackingAgents lists agents with the flag set
func (p *SQLitePreferences) TrackingAgents(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT agent_id FROM tracking_preferences WHERE enabled = 1 ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list tracked agents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tracked agent: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
