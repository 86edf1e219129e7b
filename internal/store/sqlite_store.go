// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/vidsync/internal/model"
	"github.com/ManuGH/vidsync/internal/persistence/sqlite"
)

const sqliteSchemaVersion = 1

// SqliteStore implements Store on a single SQLite file.
type SqliteStore struct {
	DB   *sql.DB
	path string
}

// OpenSqliteStore opens or creates the history database at dbPath.
func OpenSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(context.Background(), dbPath)
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db, path: dbPath}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= sqliteSchemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS snapshot_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		observed_at_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		progress_pct REAL NOT NULL,
		completed_segments INTEGER NOT NULL,
		anomalies TEXT NOT NULL DEFAULT '',
		snapshot TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_job ON snapshot_history(job_id, observed_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Append implements Store.
func (s *SqliteStore) Append(ctx context.Context, rec Record) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO snapshot_history (job_id, observed_at_ms, status, progress_pct, completed_segments, anomalies, snapshot)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.ObservedAt.UnixMilli(), string(rec.Status), rec.ProgressPct,
		rec.CompletedSegments, strings.Join(rec.Anomalies, ","), string(rec.Snapshot),
	)
	if err != nil {
		return fmt.Errorf("history store: append: %w", err)
	}
	return nil
}

// History implements Store.
func (s *SqliteStore) History(ctx context.Context, jobID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx, `
	SELECT job_id, observed_at_ms, status, progress_pct, completed_segments, anomalies, snapshot
	FROM snapshot_history WHERE job_id = ?
	ORDER BY observed_at_ms DESC, id DESC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("history store: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			atMs      int64
			status    string
			anomalies string
			snapshot  string
		)
		if err := rows.Scan(&rec.JobID, &atMs, &status, &rec.ProgressPct, &rec.CompletedSegments, &anomalies, &snapshot); err != nil {
			return nil, fmt.Errorf("history store: scan: %w", err)
		}
		rec.ObservedAt = time.UnixMilli(atMs).UTC()
		rec.Status = model.Status(status)
		if anomalies != "" {
			rec.Anomalies = strings.Split(anomalies, ",")
		}
		rec.Snapshot = []byte(snapshot)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Verify runs an integrity check on the database file and returns the
// problems it reports.
func (s *SqliteStore) Verify(ctx context.Context, full bool) ([]string, error) {
	mode := sqlite.QuickCheck
	if full {
		mode = sqlite.FullCheck
	}
	return sqlite.Verify(ctx, s.path, mode)
}

// Close implements Store.
func (s *SqliteStore) Close() error {
	return s.DB.Close()
}
