package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NamespaceImageProxy holds bodies fetched by the read-through image proxy.
const NamespaceImageProxy = "imageproxy"

// Entry is one cached response body.
type Entry struct {
	Namespace   string
	CacheKey    string
	Payload     []byte
	ContentType string
	FetchedAt   time.Time
	TTLSeconds  int
}

type Cache interface {
	Get(ctx context.Context, namespace, key string) (*Entry, error)
	Set(ctx context.Context, namespace, key string, payload []byte, contentType string, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	ClearExpired(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

type cacheImpl struct {
	db *sql.DB
}

func New(db *sql.DB) Cache {
	return &cacheImpl{db: db}
}

func (c *cacheImpl) Get(ctx context.Context, namespace, key string) (*Entry, error) {
	var entry Entry
	var fetchedAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT namespace, cache_key, payload, content_type, fetched_at, ttl_seconds
		FROM http_cache
		WHERE namespace = ? AND cache_key = ? AND datetime(fetched_at, '+' || ttl_seconds || ' seconds') > datetime('now')
		LIMIT 1
	`, namespace, key).Scan(
		&entry.Namespace, &entry.CacheKey, &entry.Payload, &entry.ContentType,
		&fetchedAt, &entry.TTLSeconds,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying cache: %w", err)
	}

	parsedTime, err := time.Parse("2006-01-02 15:04:05", fetchedAt)
	if err != nil {
		parsedTime, err = time.Parse(time.RFC3339, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing fetched_at time: %w", err)
		}
	}
	entry.FetchedAt = parsedTime

	return &entry, nil
}

func (c *cacheImpl) Set(ctx context.Context, namespace, key string, payload []byte, contentType string, ttl time.Duration) error {
	ttlSeconds := int(ttl.Seconds())

	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO http_cache
		(namespace, cache_key, payload, content_type, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
	`, namespace, key, payload, contentType, ttlSeconds)

	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}

	return nil
}

func (c *cacheImpl) Delete(ctx context.Context, namespace, key string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM http_cache WHERE namespace = ? AND cache_key = ?
	`, namespace, key)

	return err
}

func (c *cacheImpl) ClearExpired(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM http_cache
		WHERE datetime(fetched_at, '+' || ttl_seconds || ' seconds') <= datetime('now')
	`)

	return err
}

func (c *cacheImpl) ClearAll(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM http_cache")
	return err
}
