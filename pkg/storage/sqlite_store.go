package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrStoreNotInitialized is returned by every method called before Init.
var ErrStoreNotInitialized = errors.New("store not initialized")

// Store wraps an embedded SQLite database holding entity snapshot checkpoints
// and a few runtime timestamps. It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SnapshotRecord is one persisted snapshot. Data is the JSON encoding of the
// snapshot value; the store does not interpret it.
type SnapshotRecord struct {
	Kind      string
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

// UpsertSnapshot writes the snapshot for (kind, id), replacing any previous one.
func (s *Store) UpsertSnapshot(ctx context.Context, rec SnapshotRecord) error {
	if s.db == nil {
		return ErrStoreNotInitialized
	}
	if rec.Kind == "" || rec.ID == "" {
		return fmt.Errorf("upsert snapshot: kind and id are required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (kind, id, data, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(kind, id) DO UPDATE SET
           data=excluded.data,
           updated_at=excluded.updated_at`,
		rec.Kind, rec.ID, string(rec.Data), rec.UpdatedAt.UTC(),
	)
	return err
}

// DeleteSnapshot removes the snapshot for (kind, id) (no error if absent).
func (s *Store) DeleteSnapshot(ctx context.Context, kind, id string) error {
	if s.db == nil {
		return ErrStoreNotInitialized
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE kind=? AND id=?`, kind, id)
	return err
}

// GetSnapshot returns the snapshot for (kind, id), if any.
func (s *Store) GetSnapshot(ctx context.Context, kind, id string) (SnapshotRecord, bool, error) {
	if s.db == nil {
		return SnapshotRecord{}, false, ErrStoreNotInitialized
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, id, data, updated_at FROM snapshots WHERE kind=? AND id=?`,
		kind, id,
	)
	var rec SnapshotRecord
	var data string
	if err := row.Scan(&rec.Kind, &rec.ID, &data, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SnapshotRecord{}, false, nil
		}
		return SnapshotRecord{}, false, err
	}
	rec.Data = []byte(data)
	return rec, true, nil
}

// LoadSnapshots streams every snapshot of kind to fn, oldest first. Returning
// an error from fn stops the scan and is returned as is.
func (s *Store) LoadSnapshots(ctx context.Context, kind string, fn func(SnapshotRecord) error) error {
	if s.db == nil {
		return ErrStoreNotInitialized
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, data, updated_at FROM snapshots WHERE kind=? ORDER BY updated_at, id`,
		kind,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec SnapshotRecord
		var data string
		if err := rows.Scan(&rec.Kind, &rec.ID, &data, &rec.UpdatedAt); err != nil {
			return err
		}
		rec.Data = []byte(data)
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// PruneSnapshots deletes snapshots last written before cutoff and returns
// how many were removed.
func (s *Store) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreNotInitialized
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SnapshotStats returns the number of persisted snapshots per kind.
func (s *Store) SnapshotStats() (map[string]int, error) {
	if s.db == nil {
		return nil, ErrStoreNotInitialized
	}
	rows, err := s.db.Query(`SELECT kind, COUNT(*) FROM snapshots GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		stats[kind] = count
	}
	return stats, rows.Err()
}

// SetHeartbeat records the last-known "core is running" timestamp.
func (s *Store) SetHeartbeat(t time.Time) error {
	return s.setMeta("heartbeat", t)
}

// GetHeartbeat returns the last recorded heartbeat timestamp, if any.
func (s *Store) GetHeartbeat() (time.Time, bool, error) {
	return s.getMeta("heartbeat")
}

// SetLastEvent records the last time a gateway update was ingested.
func (s *Store) SetLastEvent(t time.Time) error {
	return s.setMeta("last_event", t)
}

// GetLastEvent returns the last recorded event timestamp, if any.
func (s *Store) GetLastEvent() (time.Time, bool, error) {
	return s.getMeta("last_event")
}

func (s *Store) setMeta(key string, t time.Time) error {
	if s.db == nil {
		return ErrStoreNotInitialized
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		key, t.UTC(),
	)
	return err
}

func (s *Store) getMeta(key string) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, ErrStoreNotInitialized
	}
	row := s.db.QueryRow(`SELECT ts FROM runtime_meta WHERE key=?`, key)
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func ensureSchema(db *sql.DB) error {
	const createSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
  kind       TEXT NOT NULL,
  id         TEXT NOT NULL,
  data       TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  TIMESTAMP NOT NULL
);`

	for _, sqlText := range []string{createSnapshots, createRuntimeMeta} {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
