// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
// Amounts are stored as NUMERIC(20, 0) so the full uint64 range round-trips.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vault_states (
			vault_id BIGINT PRIMARY KEY,
			model VARCHAR(32) NOT NULL,
			total_stake NUMERIC(20, 0) NOT NULL,
			total_shares NUMERIC(20, 0) NOT NULL,
			total_value NUMERIC(20, 0) NOT NULL,
			yield_per_unit NUMERIC(20, 0) NOT NULL,
			rate_snapshot NUMERIC(20, 0) NOT NULL,
			receipts NUMERIC(20, 0) NOT NULL,
			last_harvest_ypu NUMERIC(20, 0) NOT NULL,
			last_harvest_ratio NUMERIC(20, 0) NOT NULL,
			performance_fee_bps NUMERIC(20, 0) NOT NULL,
			farm_remaining NUMERIC(20, 0) NOT NULL,
			farm_emission_bps NUMERIC(20, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS user_positions (
			vault_id BIGINT NOT NULL,
			account VARCHAR(255) NOT NULL,
			stake NUMERIC(20, 0) NOT NULL,
			shares NUMERIC(20, 0) NOT NULL,
			snapshot NUMERIC(20, 0) NOT NULL,
			owed NUMERIC(20, 0) NOT NULL,
			unrealized NUMERIC(20, 0) NOT NULL,
			claimable NUMERIC(20, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (vault_id, account)
		);
		CREATE INDEX IF NOT EXISTS idx_user_positions_vault ON user_positions(vault_id);

		CREATE TABLE IF NOT EXISTS harvest_records (
			record_id SERIAL PRIMARY KEY,
			vault_id BIGINT NOT NULL,
			yield_per_unit NUMERIC(20, 0) NOT NULL,
			payout_ratio NUMERIC(20, 0) NOT NULL,
			converted NUMERIC(20, 0) NOT NULL,
			realized NUMERIC(20, 0) NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_harvest_records_vault ON harvest_records(vault_id, recorded_at DESC);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy.
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
