// ABOUTME: Migration utility that applies pending engage schema migrations
// ABOUTME: Provides dry-run and backup capabilities for SQLite and PostgreSQL databases

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/harperreed/engage/db"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "", "Path to SQLite database file")
	dsn := flag.String("dsn", "", "PostgreSQL connection string (instead of -db)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create backup before migration (SQLite only)")
	force := flag.Bool("force", false, "Migrate even if the database has migrations this binary does not know")
	flag.Parse()

	if (*dbPath == "") == (*dsn == "") {
		log.Fatal("Error: exactly one of -db or -dsn is required")
	}

	if err := migrate(*dbPath, *dsn, *dryRun, *backup, *force); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func migrate(dbPath, dsn string, dryRun, createBackup, force bool) error {
	dialect := db.SQLite
	driver, source := "sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000"
	if dsn != "" {
		dialect = db.Postgres
		driver, source = "pgx", dsn
	} else if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", dbPath)
	}

	if dialect == db.SQLite && createBackup && !dryRun {
		if err := backupFile(dbPath); err != nil {
			return err
		}
	}

	database, err := sql.Open(driver, source)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	applied, err := appliedVersions(database)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	log.Printf("Applied migrations: %d", len(applied))

	if unknown := unknownVersions(applied); len(unknown) > 0 {
		log.Printf("WARNING: database has migrations this binary does not know: %v", unknown)
		if !force {
			log.Printf("The database was probably migrated by a newer engage")
			log.Printf("Use -force flag to apply the remaining migrations anyway")
			return fmt.Errorf("migration requires -force flag")
		}
	}

	var pending []db.Migration
	for _, m := range db.Migrations() {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		log.Printf("Schema is up to date")
		return nil
	}

	if dryRun {
		log.Printf("[DRY RUN] Would apply the following migrations:")
		for _, m := range pending {
			log.Printf("[DRY RUN] - %03d %s", m.Version, m.Name)
			fmt.Println(db.RenderMigration(m, dialect))
		}
		return nil
	}

	for _, m := range pending {
		log.Printf("Applying migration %03d %s", m.Version, m.Name)
	}
	if err := db.InitSchema(database, dialect); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func backupFile(dbPath string) error {
	backupPath := fmt.Sprintf("%s.backup.%s", dbPath, time.Now().Format("20060102-150405"))
	log.Printf("Creating backup: %s", backupPath)

	input, err := os.ReadFile(dbPath)
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}
	if err := os.WriteFile(backupPath, input, 0644); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	log.Printf("Backup created successfully")
	return nil
}

// appliedVersions reads schema_migrations without creating it, so a dry run
// leaves a fresh database untouched.
func appliedVersions(database *sql.DB) (map[int]bool, error) {
	applied, err := db.AppliedVersions(database)
	if err != nil {
		var n int
		probe := database.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n)
		if probe != nil {
			// No bookkeeping table yet
			return map[int]bool{}, nil
		}
		return nil, err
	}
	return applied, nil
}

func unknownVersions(applied map[int]bool) []int {
	known := make(map[int]bool)
	for _, m := range db.Migrations() {
		known[m.Version] = true
	}
	var out []int
	for v := range applied {
		if !known[v] {
			out = append(out, v)
		}
	}
	return out
}
