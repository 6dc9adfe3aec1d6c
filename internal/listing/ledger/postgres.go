package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"listing-workers/internal/models"
)

// PostgresStore writes failures to the resolution_failures table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the failures table and its lookup index.
const Schema = `
		CREATE TABLE IF NOT EXISTS resolution_failures (
			id          BIGSERIAL PRIMARY KEY,
			run_id      TEXT        NOT NULL,
			marketplace TEXT        NOT NULL,
			country     TEXT        NOT NULL,
			lang        TEXT        NOT NULL,
			sku         TEXT        NOT NULL DEFAULT '',
			field       TEXT        NOT NULL,
			resolver    TEXT        NOT NULL DEFAULT '',
			error_code  TEXT        NOT NULL,
			message     TEXT        NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS resolution_failures_run_idx ON resolution_failures (run_id)`

// Migrate creates the table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

const insertFailure = `
		INSERT INTO resolution_failures (
			run_id, marketplace, country, lang, sku, field,
			resolver, error_code, message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// SaveFailures inserts every failure in one transaction.
func (s *PostgresStore) SaveFailures(ctx context.Context, runID string, scope models.Scope, failures []Failure) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	for _, f := range failures {
		if _, err := tx.ExecContext(ctx, insertFailure,
			runID,
			scope.Marketplace,
			scope.Country,
			scope.Lang,
			f.SKU,
			f.Field,
			f.Resolver,
			f.Code,
			f.Message,
			f.At,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert failure for %s: %w", f.Field, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}
