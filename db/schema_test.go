// ABOUTME: Tests for database schema creation and migrations
// ABOUTME: Uses in-memory SQLite for fast isolated tests
package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestInitSchema(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	if err := InitSchema(db, SQLite); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	tables := []string{
		"organizations", "persons", "activity_events", "insights", "goals", "goal_outcomes",
		"routing_rules", "config_versions", "active_config_version", "journey_history",
		"decisions", "version_tallies", "goal_states", "goal_state_history", "outbox",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	indexes := []string{
		"idx_insights_current",
		"idx_decisions_open_person",
		"idx_activity_person_time",
		"idx_outbox_due",
	}
	for _, idx := range indexes {
		var indexName string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&indexName)
		if err != nil {
			t.Errorf("Index %s not found: %v", idx, err)
		}
	}
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	for i := 0; i < 2; i++ {
		if err := InitSchema(db, SQLite); err != nil {
			t.Fatalf("InitSchema run %d failed: %v", i+1, err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("Expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestPendingMigrationsOnFreshDatabase(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	pending, err := PendingMigrations(db, SQLite)
	if err != nil {
		t.Fatalf("PendingMigrations failed: %v", err)
	}
	if len(pending) != len(migrations) {
		t.Errorf("Expected %d pending migrations, got %d", len(migrations), len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].Version <= pending[i-1].Version {
			t.Errorf("Migrations out of order at %d", i)
		}
	}
}
