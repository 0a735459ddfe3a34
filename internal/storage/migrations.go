package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the schema version this binary writes. Opening a newer
// database is refused.
const ExpectedSchemaVersion = 3

// migration is one schema step. Statements run in order inside a single transaction
// together with the user_version bump.
type migration struct {
	Description string
	Statements  []string
	Version     int
}

var migrations = []migration{
	{
		Version:     1,
		Description: "transactions and recipes",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				hash TEXT UNIQUE NOT NULL,
				account_id TEXT NOT NULL,
				date TEXT NOT NULL,
				description TEXT NOT NULL,
				amount_cents INTEGER NOT NULL,
				balance_cents INTEGER,
				category TEXT,
				source TEXT,
				external_id TEXT,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_transactions_account_date ON transactions(account_id, date)`,
			`CREATE TABLE IF NOT EXISTS recipes (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				institution TEXT,
				start_url TEXT,
				steps TEXT NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_recipes_name ON recipes(name)`,
		},
	},
	{
		Version:     2,
		Description: "checkpoint metadata",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
				id TEXT PRIMARY KEY,
				created_at DATETIME NOT NULL,
				description TEXT,
				file_size INTEGER,
				row_counts TEXT,
				schema_version INTEGER,
				is_auto BOOLEAN DEFAULT 0
			)`,
			`CREATE INDEX idx_checkpoint_metadata_created_at ON checkpoint_metadata(created_at)`,
		},
	},
	{
		Version:     3,
		Description: "import run audit",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS import_runs (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL,
				source TEXT NOT NULL,
				imported INTEGER NOT NULL DEFAULT 0,
				skipped INTEGER NOT NULL DEFAULT 0,
				errors INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_import_runs_account ON import_runs(account_id, created_at)`,
		},
	},
}

func (m migration) apply(ctx context.Context, tx *sql.Tx) error {
	for i, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// SchemaVersion reports the version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate brings the schema up to ExpectedSchemaVersion, one transaction per
// pending migration.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > ExpectedSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", current, ExpectedSchemaVersion)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.runMigration(ctx, m); err != nil {
			return err
		}
		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	final, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}

func (s *SQLiteStorage) runMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := m.apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
