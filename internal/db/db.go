// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/stock-notifier/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

const userColumns = `id, email, phone_country_code, phone_number, phone_verified,
	sms_opted_out, timezone, notification_start_hour, notification_end_hour,
	email_notifications_enabled, sms_notifications_enabled`

// Statements maps prepared statement names to SQL. Exported so the store and
// its tests agree on names.
var Statements = map[string]string{
	"health_check": "SELECT 1",

	// Directory: users by notification flags
	"users_any_channel": "SELECT " + userColumns + " FROM users WHERE email_notifications_enabled = true OR sms_notifications_enabled = true",
	"users_email":       "SELECT " + userColumns + " FROM users WHERE email_notifications_enabled = true",
	"users_sms":         "SELECT " + userColumns + " FROM users WHERE sms_notifications_enabled = true",

	// Directory: tracked symbols
	"user_items": "SELECT symbol FROM user_stocks WHERE user_id = $1",

	// Notification log
	"insert_notification_log": `INSERT INTO notification_log (
		user_id, type, delivery_method, message_delivered, message, error, error_code
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"prune_notification_log": "DELETE FROM notification_log WHERE created_at < $1",
}

// registerPreparedStatements registers all statements the notifier uses.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
