package repository

import (
	"context"
	"fmt"
	"log/slog"
)

var postgresSchema = []string{
	`CREATE SCHEMA IF NOT EXISTS reports`,
	`CREATE TABLE IF NOT EXISTS reports.generation_info (
		id SERIAL PRIMARY KEY,
		date TIMESTAMP,
		unit VARCHAR(255),
		operation VARCHAR(255) NOT NULL,
		cultura VARCHAR(255),
		"GA_per_day" DOUBLE PRECISION,
		"GA_per_operation" DOUBLE PRECISION,
		val_per_day DOUBLE PRECISION DEFAULT 0,
		val_per_operation DOUBLE PRECISION DEFAULT 0
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS generation_info (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TIMESTAMP,
		unit TEXT,
		operation TEXT NOT NULL,
		cultura TEXT,
		"GA_per_day" REAL,
		"GA_per_operation" REAL,
		val_per_day REAL DEFAULT 0,
		val_per_operation REAL DEFAULT 0
	)`,
}

// Migrate creates the schema and the operations table when missing.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stmts := sqliteSchema
	if db.Dialect == DialectPostgres {
		stmts = postgresSchema
	}
	for _, s := range stmts {
		if _, err := db.SQL.ExecContext(ctx, s); err != nil {
			logger.Error("migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("schema ready", "driver", db.Dialect, "table", tableName(db.Dialect))
	return nil
}
