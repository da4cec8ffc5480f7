package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/OpenCHAMI/senselink/internal/cache"
	"github.com/OpenCHAMI/senselink/internal/util"
)

const TABLE_NAME = "senselink_requesters"

// RequesterCache keeps the hosts that polled the responder in a SQLite file.
type RequesterCache struct {
	db *sqlx.DB
}

var _ cache.Cache[cache.Requester] = (*RequesterCache)(nil)

// Open opens (and creates if needed) the cache database at path.
func Open(path string) (*RequesterCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to make cache directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		host 		TEXT NOT NULL,
		port 		INTEGER NOT NULL,
		polls 		INTEGER NOT NULL DEFAULT 0,
		dropped 	INTEGER NOT NULL DEFAULT 0,
		last_reason TEXT NOT NULL DEFAULT '',
		session 	TEXT NOT NULL DEFAULT '',
		first_seen 	TIMESTAMP,
		last_seen 	TIMESTAMP,
		PRIMARY KEY (host, port)
	);
	`, TABLE_NAME)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &RequesterCache{db: db}, nil
}

// OpenExisting opens the cache without creating it.
func OpenExisting(path string) (*RequesterCache, error) {
	if _, exists := util.PathExists(path); !exists {
		return nil, fmt.Errorf("no cache found at %s", path)
	}
	return Open(path)
}

// Insert merges requesters into the cache: counters are added and the
// latest session, reason and last-seen time win.
func (c *RequesterCache) Insert(requesters ...cache.Requester) error {
	if len(requesters) == 0 {
		return nil
	}
	tx, err := c.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	sql := fmt.Sprintf(`INSERT INTO %s (host, port, polls, dropped, last_reason, session, first_seen, last_seen)
		VALUES (:host, :port, :polls, :dropped, :last_reason, :session, :first_seen, :last_seen)
		ON CONFLICT(host, port) DO UPDATE SET
			polls = polls + excluded.polls,
			dropped = dropped + excluded.dropped,
			last_reason = CASE WHEN excluded.last_reason != '' THEN excluded.last_reason ELSE last_reason END,
			session = excluded.session,
			last_seen = excluded.last_seen;`, TABLE_NAME)
	for _, r := range requesters {
		if _, err := tx.NamedExec(sql, &r); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert requester %s:%d: %w", r.Host, r.Port, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes requesters by host, port or both. Entries with neither
// set are skipped.
func (c *RequesterCache) Delete(requesters ...cache.Requester) error {
	tx, err := c.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, r := range requesters {
		where := []string{}
		if r.Host != "" {
			where = append(where, "host=:host")
		}
		if r.Port > 0 {
			where = append(where, "port=:port")
		}
		if len(where) == 0 {
			continue
		}
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s;", TABLE_NAME, strings.Join(where, " AND "))
		if _, err := tx.NamedExec(sql, &r); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to delete requester: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *RequesterCache) Get() ([]cache.Requester, error) {
	results := []cache.Requester{}
	err := c.db.Select(&results, fmt.Sprintf("SELECT host, port, polls, dropped, last_reason, session, first_seen, last_seen FROM %s ORDER BY host ASC, port ASC;", TABLE_NAME))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve requesters: %w", err)
	}
	return results, nil
}

func (c *RequesterCache) Close() error {
	return c.db.Close()
}
