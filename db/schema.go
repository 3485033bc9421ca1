// ABOUTME: Database schema definitions and versioned migrations
// ABOUTME: One schema text rendered for SQLite or PostgreSQL column types
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration is one numbered schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []Migration{
	{Version: 1, Name: "core", SQL: coreSchema},
	{Version: 2, Name: "decisions", SQL: decisionSchema},
	{Version: 3, Name: "outbox", SQL: outboxSchema},
}

const coreSchema = `
CREATE TABLE IF NOT EXISTS organizations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	subscription_status TEXT NOT NULL DEFAULT 'none',
	persona TEXT,
	company_types TEXT NOT NULL DEFAULT '[]',
	journey_stage TEXT NOT NULL DEFAULT 'aware',
	engagement_score INTEGER NOT NULL DEFAULT 0,
	scores_computed_at {{ts}},
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS persons (
	id TEXT PRIMARY KEY,
	account_id TEXT UNIQUE,
	chat_id TEXT UNIQUE,
	email TEXT UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	organization_id TEXT REFERENCES organizations(id),
	mapping_status TEXT NOT NULL DEFAULT 'unmapped' CHECK(mapping_status IN ('mapped', 'unmapped')),
	score INTEGER NOT NULL DEFAULT 0,
	score_activity INTEGER NOT NULL DEFAULT 0,
	score_events INTEGER NOT NULL DEFAULT 0,
	score_formula TEXT NOT NULL DEFAULT '',
	scores_computed_at {{ts}},
	last_activity_at {{ts}},
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_persons_org ON persons(organization_id);

CREATE TABLE IF NOT EXISTS activity_events (
	id TEXT PRIMARY KEY,
	dedup_key TEXT NOT NULL UNIQUE,
	person_id TEXT NOT NULL REFERENCES persons(id),
	organization_id TEXT,
	type TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	occurred_at {{ts}} NOT NULL,
	recorded_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_person_time ON activity_events(person_id, occurred_at);

CREATE TABLE IF NOT EXISTS insights (
	id TEXT PRIMARY KEY,
	subject_kind TEXT NOT NULL CHECK(subject_kind IN ('person', 'organization')),
	subject_id TEXT NOT NULL,
	type TEXT NOT NULL,
	value TEXT NOT NULL,
	confidence {{real}} NOT NULL DEFAULT 1,
	source TEXT NOT NULL,
	is_current BOOLEAN NOT NULL,
	expires_at {{ts}},
	created_at {{ts}} NOT NULL,
	superseded_at {{ts}}
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_insights_current ON insights(subject_kind, subject_id, type) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_insights_subject ON insights(subject_kind, subject_id);

CREATE TABLE IF NOT EXISTS goals (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL,
	message_template TEXT NOT NULL,
	link_url TEXT NOT NULL DEFAULT '',
	requires_mapped BOOLEAN,
	requires_min_engagement INTEGER NOT NULL DEFAULT 0,
	requires_insights TEXT NOT NULL DEFAULT '[]',
	excludes_insights TEXT NOT NULL DEFAULT '[]',
	requires_persona TEXT NOT NULL DEFAULT '[]',
	requires_company_type TEXT NOT NULL DEFAULT '[]',
	base_priority INTEGER NOT NULL DEFAULT 0,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS goal_outcomes (
	id TEXT PRIMARY KEY,
	goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL DEFAULT 0,
	trigger_type TEXT NOT NULL CHECK(trigger_type IN ('sentiment', 'intent', 'timeout', 'default')),
	trigger_value TEXT NOT NULL DEFAULT '',
	outcome_type TEXT NOT NULL CHECK(outcome_type IN ('success', 'decline', 'clarify', 'defer', 'escalate')),
	insight_to_record TEXT NOT NULL DEFAULT '',
	insight_value TEXT NOT NULL DEFAULT '',
	defer_days INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_goal_outcomes_goal ON goal_outcomes(goal_id);

CREATE TABLE IF NOT EXISTS routing_rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	channel TEXT NOT NULL CHECK(channel IN ('slack', 'email', 'web')),
	requires_chat BOOLEAN NOT NULL DEFAULT FALSE,
	requires_email BOOLEAN NOT NULL DEFAULT FALSE,
	priority INTEGER NOT NULL DEFAULT 0,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS config_versions (
	id {{serial}},
	hash TEXT NOT NULL UNIQUE,
	rule_ids TEXT NOT NULL,
	snapshot {{blob}} NOT NULL,
	score_formula TEXT NOT NULL,
	message_count {{bigint}} NOT NULL DEFAULT 0,
	positive_feedback {{bigint}} NOT NULL DEFAULT 0,
	negative_feedback {{bigint}} NOT NULL DEFAULT 0,
	rating_sum {{bigint}} NOT NULL DEFAULT 0,
	rating_count {{bigint}} NOT NULL DEFAULT 0,
	created_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS active_config_version (
	singleton INTEGER PRIMARY KEY CHECK(singleton = 1),
	version_id {{bigint}} NOT NULL REFERENCES config_versions(id),
	updated_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS journey_history (
	id {{serial}},
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	from_stage TEXT NOT NULL DEFAULT '',
	to_stage TEXT NOT NULL,
	trigger_kind TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	regression BOOLEAN NOT NULL DEFAULT FALSE,
	created_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journey_history_org ON journey_history(organization_id, created_at);
`

const decisionSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	person_id TEXT NOT NULL REFERENCES persons(id),
	organization_id TEXT,
	goal_id TEXT NOT NULL REFERENCES goals(id),
	goal_name TEXT NOT NULL,
	config_version_id {{bigint}} NOT NULL REFERENCES config_versions(id),
	channel TEXT NOT NULL,
	message TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'dispatched', 'dispatch_failed', 'resolved')),
	outcome_type TEXT NOT NULL DEFAULT '',
	signal_kind TEXT NOT NULL DEFAULT '',
	signal_value TEXT NOT NULL DEFAULT '',
	rating INTEGER,
	created_at {{ts}} NOT NULL,
	dispatched_at {{ts}},
	resolved_at {{ts}}
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_decisions_open_person ON decisions(person_id) WHERE resolved_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_decisions_version ON decisions(config_version_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);

CREATE TABLE IF NOT EXISTS version_tallies (
	decision_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('message', 'feedback')),
	version_id {{bigint}} NOT NULL REFERENCES config_versions(id),
	created_at {{ts}} NOT NULL,
	PRIMARY KEY (decision_id, kind)
);

CREATE TABLE IF NOT EXISTS goal_states (
	person_id TEXT NOT NULL REFERENCES persons(id),
	goal_id TEXT NOT NULL REFERENCES goals(id),
	status TEXT NOT NULL CHECK(status IN ('proposed', 'deferred', 'succeeded', 'declined', 'escalated')),
	deferred_until {{ts}},
	last_decision_id TEXT NOT NULL DEFAULT '',
	updated_at {{ts}} NOT NULL,
	PRIMARY KEY (person_id, goal_id)
);

CREATE TABLE IF NOT EXISTS goal_state_history (
	id {{serial}},
	person_id TEXT NOT NULL,
	goal_id TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status TEXT NOT NULL,
	trigger_kind TEXT NOT NULL,
	decision_id TEXT NOT NULL DEFAULT '',
	created_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_goal_state_history_person ON goal_state_history(person_id, goal_id);
`

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	dedup_key TEXT NOT NULL UNIQUE,
	msg_key TEXT NOT NULL DEFAULT '',
	payload {{blob}} NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	next_attempt_at {{ts}} NOT NULL,
	published_at {{ts}},
	abandoned_at {{ts}},
	last_error TEXT NOT NULL DEFAULT '',
	created_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox(published_at, next_attempt_at);
`

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at {{ts}} NOT NULL
);
`

// render substitutes dialect specific column types.
func render(schema string, d Dialect) string {
	var r *strings.Replacer
	if d == Postgres {
		r = strings.NewReplacer(
			"{{ts}}", "TIMESTAMPTZ",
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{blob}}", "BYTEA",
			"{{real}}", "DOUBLE PRECISION",
			"{{bigint}}", "BIGINT",
		)
	} else {
		r = strings.NewReplacer(
			"{{ts}}", "DATETIME",
			"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{blob}}", "BLOB",
			"{{real}}", "REAL",
			"{{bigint}}", "INTEGER",
		)
	}
	return r.Replace(schema)
}

// InitSchema applies every pending migration.
func InitSchema(db *sql.DB, d Dialect) error {
	pending, err := PendingMigrations(db, d)
	if err != nil {
		return err
	}

	for _, m := range pending {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(render(m.SQL, d)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		insert := "INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)"
		if d == Postgres {
			insert = "INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)"
		}
		if _, err := tx.Exec(insert, m.Version, m.Name, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// PendingMigrations lists migrations not yet applied, creating the bookkeeping table if needed.
func PendingMigrations(db *sql.DB, d Dialect) ([]Migration, error) {
	if _, err := db.Exec(render(migrationsTable, d)); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := AppliedVersions(db)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// AppliedVersions returns the set of applied migration versions.
func AppliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// RenderMigration returns the SQL a migration runs on the given dialect.
func RenderMigration(m Migration, d Dialect) string {
	return render(m.SQL, d)
}

// Migrations returns every known migration in order.
func Migrations() []Migration {
	out := make([]Migration, len(migrations))
	copy(out, migrations)
	return out
}
