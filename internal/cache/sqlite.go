package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const httpCacheSchema = `
CREATE TABLE IF NOT EXISTS http_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL,
	cache_key TEXT NOT NULL,
	payload BLOB NOT NULL,
	content_type TEXT,
	fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL,
	UNIQUE (namespace, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_http_cache_namespace_key ON http_cache(namespace, cache_key);
CREATE INDEX IF NOT EXISTS idx_http_cache_fetched_at ON http_cache(fetched_at);
`

func NewWithPath(path string) (Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging cache database: %w", err)
	}
	if _, err := conn.Exec(httpCacheSchema); err != nil {
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &cacheImpl{db: conn}, nil
}
