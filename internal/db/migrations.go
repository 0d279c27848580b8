package db

import "fmt"

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{version: 1, name: "hero_slides", sql: heroSlidesTable},
	{version: 2, name: "team_members", sql: teamMembersTable},
	{version: 3, name: "events", sql: eventsTable},
	{version: 4, name: "notices", sql: noticesTable},
	{version: 5, name: "magazines", sql: magazinesTable},
	{version: 6, name: "users", sql: usersTable},
	{version: 7, name: "http_cache", sql: httpCacheTable},
	{version: 8, name: "app_settings", sql: appSettingsTable},
}

func validateMigrations() error {
	if len(migrations) == 0 {
		return fmt.Errorf("no migrations defined")
	}

	seenVersions := make(map[int]bool)
	seenNames := make(map[string]bool)
	prevVersion := 0
	for _, migration := range migrations {
		if migration.version <= 0 {
			return fmt.Errorf("invalid migration version %d", migration.version)
		}
		if seenVersions[migration.version] {
			return fmt.Errorf("duplicate migration version %d", migration.version)
		}
		if seenNames[migration.name] {
			return fmt.Errorf("duplicate migration name %s", migration.name)
		}
		if migration.version <= prevVersion {
			return fmt.Errorf("migration version %d out of order", migration.version)
		}
		seenVersions[migration.version] = true
		seenNames[migration.name] = true
		prevVersion = migration.version
	}

	return nil
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const heroSlidesTable = `
CREATE TABLE IF NOT EXISTS hero_slides (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	subtitle TEXT,
	cta_label TEXT,
	cta_url TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0,
	image_url TEXT NOT NULL DEFAULT '',
	media_key TEXT,
	storage_provider TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_hero_slides_sort_order ON hero_slides(sort_order);
`

const teamMembersTable = `
CREATE TABLE IF NOT EXISTS team_members (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	position TEXT NOT NULL,
	linkedin_url TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0,
	image_url TEXT NOT NULL DEFAULT '',
	media_key TEXT,
	storage_provider TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_team_members_sort_order ON team_members(sort_order);
`

const eventsTable = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	venue TEXT,
	starts_at DATETIME NOT NULL,
	registration_url TEXT,
	image_url TEXT NOT NULL DEFAULT '',
	media_key TEXT,
	storage_provider TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_starts_at ON events(starts_at DESC);
`

const noticesTable = `
CREATE TABLE IF NOT EXISTS notices (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	body TEXT,
	pinned INTEGER NOT NULL DEFAULT 0,
	published_at DATETIME NOT NULL,
	image_url TEXT NOT NULL DEFAULT '',
	media_key TEXT,
	storage_provider TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notices_published_at ON notices(published_at DESC);
CREATE INDEX IF NOT EXISTS idx_notices_pinned ON notices(pinned);
`

const magazinesTable = `
CREATE TABLE IF NOT EXISTS magazines (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	issue_date DATE NOT NULL,
	pdf_url TEXT NOT NULL,
	cover_url TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_magazines_issue_date ON magazines(issue_date DESC);
`

const usersTable = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'admin' CHECK (role IN ('admin', 'editor', 'viewer')),
	disabled_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

const httpCacheTable = `
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

const appSettingsTable = `
CREATE TABLE IF NOT EXISTS app_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TRIGGER IF NOT EXISTS app_settings_updated_at
AFTER UPDATE ON app_settings
BEGIN
	UPDATE app_settings SET updated_at = CURRENT_TIMESTAMP WHERE key = NEW.key;
END;
`
