// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"listing-workers/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient holds the pool the failure ledger writes through.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool without dialing; callers Ping before use.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("postgres host is empty")
	}
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return configure(db, cfg), nil
}

func configure(db *sql.DB, cfg config.PostgresConfig) *PostgresClient {
	// a run flushes its ledger once, so a small pool is enough
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
	return &PostgresClient{DB: db}
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
