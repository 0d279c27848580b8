package db

import (
	"path/filepath"
	"testing"
)

func TestNewCreatesSchema(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating database: %v", err)
	}
	defer database.Close()

	tables := []string{
		"hero_slides", "team_members", "events", "notices", "magazines",
		"users", "http_cache", "app_settings", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	second, err := New(path)
	if err != nil {
		t.Fatalf("second open should not re-run migrations: %v", err)
	}
	defer second.Close()

	var count int
	if err := second.Conn().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestValidateMigrations(t *testing.T) {
	if err := validateMigrations(); err != nil {
		t.Errorf("migration list invalid: %v", err)
	}
}

func TestUsersRoleConstraint(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating database: %v", err)
	}
	defer database.Close()

	_, err = database.Conn().Exec(
		"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		"alex", "hash", "superuser",
	)
	if err == nil {
		t.Error("unknown role should violate the CHECK constraint")
	}
}
