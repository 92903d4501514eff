package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					amount TEXT NOT NULL,
					timestamp DATETIME NOT NULL,
					merchant TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL DEFAULT '',
					payment_method TEXT NOT NULL DEFAULT '',
					location TEXT NOT NULL DEFAULT 'Unknown',
					base_risk REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'Pending',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id)`,

				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					email TEXT NOT NULL,
					phone TEXT NOT NULL DEFAULT '',
					location TEXT NOT NULL DEFAULT 'Unknown',
					status TEXT NOT NULL DEFAULT 'Active',
					travel_mode INTEGER NOT NULL DEFAULT 0,
					trusted_locations TEXT NOT NULL DEFAULT '[]',
					created_at DATETIME NOT NULL
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add evaluation results",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS test_results (
					test_id TEXT PRIMARY KEY,
					algorithm TEXT NOT NULL,
					timestamp DATETIME NOT NULL,
					true_positives INTEGER NOT NULL,
					false_positives INTEGER NOT NULL,
					true_negatives INTEGER NOT NULL,
					false_negatives INTEGER NOT NULL,
					threshold REAL NOT NULL,
					accuracy REAL NOT NULL,
					precision REAL NOT NULL,
					recall REAL NOT NULL,
					f1_score REAL NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_test_results_timestamp ON test_results(timestamp)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Keep the labeled transactions behind each evaluation",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS test_transactions (
					id TEXT PRIMARY KEY,
					test_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					amount TEXT NOT NULL,
					timestamp DATETIME NOT NULL,
					merchant TEXT NOT NULL,
					category TEXT NOT NULL,
					payment_method TEXT NOT NULL,
					location TEXT NOT NULL,
					base_risk REAL NOT NULL,
					status TEXT NOT NULL,
					is_actual_fraud INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_test_transactions_test_id ON test_transactions(test_id)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
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

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
