package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create taxonomy tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL CHECK (type IN ('income', 'expense')),
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (organization_id, name)
				)`,
				`CREATE TABLE IF NOT EXISTS cost_centers (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					name TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (organization_id, name)
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Create reconciliation rules",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS reconciliation_rules (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					description_match TEXT NOT NULL,
					amount TEXT NOT NULL,
					due_day INTEGER CHECK (due_day IS NULL OR (due_day BETWEEN 1 AND 31)),
					type TEXT NOT NULL CHECK (type IN ('credit', 'debit')),
					category_id TEXT NOT NULL REFERENCES categories(id),
					cost_center_id TEXT REFERENCES cost_centers(id),
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_org_active ON reconciliation_rules(organization_id, is_active)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Create transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					batch_id TEXT NOT NULL,
					fingerprint TEXT NOT NULL,
					date TEXT NOT NULL,
					description TEXT NOT NULL,
					raw_description TEXT NOT NULL,
					amount TEXT NOT NULL,
					direction TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
					validation_status TEXT NOT NULL DEFAULT 'pending_validation',
					category_id TEXT,
					cost_center_id TEXT,
					classification_source TEXT,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (account_id, fingerprint)
				)`,
				`CREATE INDEX idx_transactions_batch ON transactions(batch_id)`,
				`CREATE INDEX idx_transactions_org_status ON transactions(organization_id, validation_status)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Create import batches",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS import_batches (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					format TEXT NOT NULL,
					file_name TEXT,
					file_size INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					error_message TEXT,
					total_count INTEGER NOT NULL DEFAULT 0,
					imported_count INTEGER NOT NULL DEFAULT 0,
					duplicate_count INTEGER NOT NULL DEFAULT 0,
					error_count INTEGER NOT NULL DEFAULT 0,
					classified_count INTEGER NOT NULL DEFAULT 0,
					period_start TEXT,
					period_end TEXT,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_batches_org_created ON import_batches(organization_id, created_at)`,
			})
		},
	},
	{
		Version:     5,
		Description: "Create learned patterns",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS learned_patterns (
					organization_id TEXT NOT NULL,
					canonical_key TEXT NOT NULL,
					category_id TEXT NOT NULL,
					cost_center_id TEXT,
					occurrence_count INTEGER NOT NULL DEFAULT 0,
					agreement_count INTEGER NOT NULL DEFAULT 0,
					avg_amount TEXT NOT NULL DEFAULT '0',
					confidence REAL NOT NULL DEFAULT 0,
					last_used_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					version INTEGER NOT NULL DEFAULT 1,
					PRIMARY KEY (organization_id, canonical_key)
				)`,
			})
		},
	},
}

// Migrate runs all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
