package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTier is the structured primary tier, backed by a single sqlite
// file. It survives restarts, so a cold client starts with whatever the
// previous session cached.
type sqliteTier struct {
	db      *sql.DB
	maxRows int
}

func newSQLiteTier(path string, maxRows int) (*sqliteTier, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key       TEXT PRIMARY KEY,
			payload   BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			ttl_ns    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at ON cache_entries(stored_at)`,
		`CREATE TABLE IF NOT EXISTS offline_snapshots (
			key       TEXT PRIMARY KEY,
			payload   BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			ttl_ns    INTEGER NOT NULL
		)`,
	}
	for _, stmt := range migrations {
		if _, execErr := db.Exec(stmt); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply migration: %w", execErr)
		}
	}

	return &sqliteTier{db: db, maxRows: maxRows}, nil
}

func (t *sqliteTier) ID() TierID { return TierStructured }

func (t *sqliteTier) Get(key string) (*Entry, bool, error) {
	row := t.db.QueryRow(`SELECT payload, stored_at, ttl_ns FROM cache_entries WHERE key = ?`, key)

	var payload []byte
	var storedAt, ttlNs int64
	if err := row.Scan(&payload, &storedAt, &ttlNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select entry %s: %w", key, err)
	}

	return &Entry{
		Key:      key,
		Payload:  payload,
		StoredAt: time.Unix(0, storedAt),
		TTL:      time.Duration(ttlNs),
		Tier:     TierStructured,
	}, true, nil
}

func (t *sqliteTier) Set(entry *Entry) error {
	if t.maxRows > 0 {
		var exists bool
		if err := t.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM cache_entries WHERE key = ?)`, entry.Key).Scan(&exists); err != nil {
			return fmt.Errorf("check entry %s: %w", entry.Key, err)
		}
		if !exists {
			var rows int
			if err := t.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&rows); err != nil {
				return fmt.Errorf("count entries: %w", err)
			}
			if rows >= t.maxRows {
				return ErrCapacity
			}
		}
	}

	_, err := t.db.Exec(
		`INSERT INTO cache_entries (key, payload, stored_at, ttl_ns) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload,
			stored_at = excluded.stored_at, ttl_ns = excluded.ttl_ns`,
		entry.Key, entry.Payload, entry.StoredAt.UnixNano(), int64(entry.TTL),
	)
	if err != nil {
		return fmt.Errorf("upsert entry %s: %w", entry.Key, err)
	}
	return nil
}

func (t *sqliteTier) Delete(key string) error {
	if _, err := t.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete entry %s: %w", key, err)
	}
	return nil
}

func (t *sqliteTier) Keys() ([]string, error) {
	rows, err := t.db.Query(`SELECT key FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("select keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (t *sqliteTier) Len() (int, error) {
	var n int
	if err := t.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (t *sqliteTier) EvictOldest(fraction float64) (int, error) {
	total, err := t.Len()
	if err != nil {
		return 0, err
	}
	quota := oldestQuota(total, fraction)
	if quota == 0 {
		return 0, nil
	}

	res, err := t.db.Exec(
		`DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries ORDER BY stored_at ASC LIMIT ?
		)`, quota,
	)
	if err != nil {
		return 0, fmt.Errorf("evict oldest: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *sqliteTier) GetSnapshot(key string) (*Entry, bool, error) {
	row := t.db.QueryRow(`SELECT payload, stored_at, ttl_ns FROM offline_snapshots WHERE key = ?`, key)

	var payload []byte
	var storedAt, ttlNs int64
	if err := row.Scan(&payload, &storedAt, &ttlNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select snapshot %s: %w", key, err)
	}

	return &Entry{
		Key:      key,
		Payload:  payload,
		StoredAt: time.Unix(0, storedAt),
		TTL:      time.Duration(ttlNs),
		Tier:     TierStructured,
	}, true, nil
}

func (t *sqliteTier) SetSnapshot(entry *Entry) error {
	_, err := t.db.Exec(
		`INSERT INTO offline_snapshots (key, payload, stored_at, ttl_ns) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload,
			stored_at = excluded.stored_at, ttl_ns = excluded.ttl_ns`,
		entry.Key, entry.Payload, entry.StoredAt.UnixNano(), int64(entry.TTL),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", entry.Key, err)
	}
	return nil
}

func (t *sqliteTier) Close() error { return t.db.Close() }
