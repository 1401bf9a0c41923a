package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/agroclimate/internal/climate"
)

// SQLiteStore persists series in SQLite so cached historical pulls survive
// restarts.
type SQLiteStore struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string, maxAge time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	s := NewSQLite(db, maxAge)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func NewSQLite(db *sql.DB, maxAge time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, maxAge: maxAge, now: time.Now}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSeries replaces the series stored under key.
func (s *SQLiteStore) SaveSeries(ctx context.Context, key string, records []climate.DailyRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM series_records WHERE series_key = ?`, key); err != nil {
		return fmt.Errorf("clear series: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO series (series_key, saved_at) VALUES (?, ?)
		ON CONFLICT(series_key) DO UPDATE SET saved_at = excluded.saved_at
	`, key, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert series: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO series_records (series_key, date, record_json) VALUES (?, ?, ?)
		ON CONFLICT(series_key, date) DO UPDATE SET record_json = excluded.record_json
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.Date, err)
		}
		if _, err := stmt.ExecContext(ctx, key, r.Date, string(b)); err != nil {
			return fmt.Errorf("insert record %s: %w", r.Date, err)
		}
	}
	return tx.Commit()
}

// GetSeries loads the series stored under key in date order.
func (s *SQLiteStore) GetSeries(ctx context.Context, key string) ([]climate.DailyRecord, error) {
	var savedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM series WHERE series_key = ?`, key).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.maxAge > 0 && s.now().Sub(savedAt) > s.maxAge {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_json FROM series_records
		WHERE series_key = ?
		ORDER BY date ASC
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []climate.DailyRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r climate.DailyRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune deletes series older than the configured max age.
func (s *SQLiteStore) Prune(ctx context.Context) (int, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.maxAge).UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM series_records WHERE series_key IN (SELECT series_key FROM series WHERE saved_at < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM series WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune series: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}
