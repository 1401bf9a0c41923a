package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Series cache",
		SQL: `
CREATE TABLE IF NOT EXISTS series (
    series_key TEXT PRIMARY KEY,
    saved_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS series_records (
    series_key TEXT NOT NULL,
    date TEXT NOT NULL,
    record_json TEXT NOT NULL,
    PRIMARY KEY (series_key, date)
);

CREATE INDEX IF NOT EXISTS idx_series_saved_at ON series(saved_at);
`,
	},
}

// Migrate applies pending schema migrations in version order.
func (s *SQLiteStore) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(s.db, m); err != nil {
			return err
		}
		log.Printf("store: applied migration %d (%s)", m.Version, m.Description)
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}
