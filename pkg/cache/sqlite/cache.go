// Package sqlite stores fetched pricing documents with a time-to-live.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// Cache is a keyed document cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// Entry describes one cached document.
type Entry struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
	Expired   bool      `json:"expired"`
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS pricing_documents (
	key TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	fetched_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
`

// New creates a Cache with the given database path and default TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get retrieves a cached document. Returns false if not found or expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	var data []byte
	var fetchedAt, ttlSeconds int64

	err := c.db.QueryRow(
		`SELECT data, fetched_at, ttl_seconds FROM pricing_documents WHERE key = ?`, key,
	).Scan(&data, &fetchedAt, &ttlSeconds)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	if c.expired(fetchedAt, ttlSeconds) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return data, true
}

func (c *Cache) expired(fetchedAt, ttlSeconds int64) bool {
	age := c.now().Sub(time.Unix(fetchedAt, 0))
	return age > time.Duration(ttlSeconds)*time.Second
}

// Put stores a document, replacing any previous copy.
func (c *Cache) Put(key string, data []byte) error {
	if len(data) == 0 {
		return errors.New("cache put: empty document")
	}
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO pricing_documents (key, data, fetched_at, ttl_seconds)
		 VALUES (?, ?, ?, ?)`,
		key, data, c.now().Unix(), int64(c.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRow(`SELECT COUNT(*) FROM pricing_documents`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Entries lists cached documents ordered by key.
func (c *Cache) Entries() ([]Entry, error) {
	rows, err := c.db.Query(
		`SELECT key, length(data), fetched_at, ttl_seconds FROM pricing_documents ORDER BY key`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var fetchedAt, ttlSeconds int64
		if err := rows.Scan(&e.Key, &e.Size, &fetchedAt, &ttlSeconds); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.FetchedAt = time.Unix(fetchedAt, 0).UTC()
		e.Expired = c.expired(fetchedAt, ttlSeconds)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes cache entries. If expiredOnly is true, only expired entries
// are removed. It returns the number of entries removed.
func (c *Cache) Clear(expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = c.db.Exec(
			`DELETE FROM pricing_documents WHERE ? - fetched_at > ttl_seconds`, c.now().Unix(),
		)
	} else {
		res, err = c.db.Exec(`DELETE FROM pricing_documents`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
