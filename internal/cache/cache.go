// Package cache tracks which issue content has already received feedback.
// One row per issue key, holding the fingerprint of the last successfully
// delivered feedback.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joescharf/iq/internal/iqerr"
	"github.com/joescharf/iq/internal/models"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS feedback_cache (
	issue_key      TEXT PRIMARY KEY,
	last_hash      TEXT NOT NULL,
	delivered_at   TEXT NOT NULL,
	delivery_count INTEGER NOT NULL DEFAULT 1
)`

// Stats summarizes cache contents.
type Stats struct {
	Entries         int
	TotalDeliveries int
	LastActivity    time.Time
}

// Cache is a SQLite-backed idempotency store.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, iqerr.Wrap(iqerr.KindCache, err, "create cache directory")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, iqerr.Wrap(iqerr.KindCache, err, "open cache database")
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all mutations through the pool; WAL lets readers proceed
	// alongside a writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, iqerr.Wrap(iqerr.KindCache, err, "apply %s", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, iqerr.Wrap(iqerr.KindCache, err, "create cache schema")
	}

	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// ShouldProcess reports whether the issue needs feedback: true when no entry
// exists or the stored fingerprint differs from the given one.
func (c *Cache) ShouldProcess(ctx context.Context, issueKey, fingerprint string) (bool, error) {
	var last string
	err := c.db.QueryRowContext(ctx,
		"SELECT last_hash FROM feedback_cache WHERE issue_key = ?", issueKey,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, iqerr.Wrap(iqerr.KindCache, err, "lookup %s", issueKey)
	}
	return last != fingerprint, nil
}

// MarkDelivered records a successful delivery as a single atomic upsert: the
// row is created on first delivery, otherwise the fingerprint is replaced and
// the count incremented. The update is conditional on the fingerprint
// actually changing, which closes the check-then-act race between concurrent
// callers on the same key: exactly one of them records the new delivery and
// returns true, the rest observe the already-updated fingerprint.
func (c *Cache) MarkDelivered(ctx context.Context, issueKey, fingerprint string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO feedback_cache (issue_key, last_hash, delivered_at, delivery_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(issue_key) DO UPDATE SET
			last_hash      = excluded.last_hash,
			delivered_at   = excluded.delivered_at,
			delivery_count = delivery_count + 1
		WHERE last_hash != excluded.last_hash`,
		issueKey, fingerprint, now)
	if err != nil {
		return false, iqerr.Wrap(iqerr.KindCache, err, "mark %s delivered", issueKey)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, iqerr.Wrap(iqerr.KindCache, err, "mark %s delivered", issueKey)
	}
	return n > 0, nil
}

// Get returns the entry for an issue key, or nil when absent.
func (c *Cache) Get(ctx context.Context, issueKey string) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var deliveredAt string
	err := c.db.QueryRowContext(ctx,
		"SELECT issue_key, last_hash, delivered_at, delivery_count FROM feedback_cache WHERE issue_key = ?",
		issueKey,
	).Scan(&e.IssueKey, &e.Fingerprint, &deliveredAt, &e.DeliveryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, iqerr.Wrap(iqerr.KindCache, err, "get %s", issueKey)
	}
	if t, perr := time.Parse(time.RFC3339, deliveredAt); perr == nil {
		e.DeliveredAt = t
	}
	return &e, nil
}

// Stats returns entry and delivery totals.
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	var last sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(delivery_count), 0), MAX(delivered_at)
		FROM feedback_cache`,
	).Scan(&s.Entries, &s.TotalDeliveries, &last)
	if err != nil {
		return nil, iqerr.Wrap(iqerr.KindCache, err, "read stats")
	}
	if last.Valid {
		if t, perr := time.Parse(time.RFC3339, last.String); perr == nil {
			s.LastActivity = t
		}
	}
	return &s, nil
}

// Clear wipes all entries. Operator-triggered full reprocessing only.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM feedback_cache"); err != nil {
		return iqerr.Wrap(iqerr.KindCache, err, "clear cache")
	}
	return nil
}

// String implements fmt.Stringer for stats display.
func (s *Stats) String() string {
	return fmt.Sprintf("%d entries, %d deliveries", s.Entries, s.TotalDeliveries)
}
