// Package sqlitelog is a local notification_log sink backed by an embedded
// SQLite file. It is used when no Postgres log table is reachable, for
// example on a developer machine running with EMAIL_TRANSPORT=log.
package sqlitelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/albapepper/stock-notifier/internal/notifications"
)

const schema = `
CREATE TABLE IF NOT EXISTS notification_log (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT    NOT NULL,
	type              TEXT    NOT NULL,
	delivery_method   TEXT    NOT NULL,
	message_delivered INTEGER NOT NULL,
	message           TEXT    NOT NULL,
	error             TEXT,
	error_code        TEXT,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_log_user ON notification_log(user_id, created_at);
`

// Sink appends attempts to a SQLite notification_log table.
type Sink struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and its parent directory if needed.
func Open(ctx context.Context, path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; concurrent workers queue on the one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite log: %w", err)
		}
	}
	return &Sink{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Append inserts one row.
func (s *Sink) Append(ctx context.Context, a notifications.Attempt) error {
	var errText, errCode sql.NullString
	if e := a.LogError(); e != nil {
		errText = sql.NullString{String: *e, Valid: true}
	}
	if a.ErrorCode != "" {
		errCode = sql.NullString{String: a.ErrorCode, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_log
			(user_id, type, delivery_method, message_delivered, message, error, error_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, notifications.LogType, string(a.Channel), a.Delivered, a.LogMessage(),
		errText, errCode, s.now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// PruneLog deletes rows created before cutoff.
func (s *Sink) PruneLog(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_log WHERE created_at < ?`, before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune notification log: %w", err)
	}
	return res.RowsAffected()
}

// Entry is one stored row. Error and ErrorCode are empty when NULL.
type Entry struct {
	UserID           string
	Type             string
	DeliveryMethod   string
	MessageDelivered bool
	Message          string
	Error            string
	ErrorCode        string
	CreatedAt        time.Time
}

// Recent returns up to limit rows, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, type, delivery_method, message_delivered, message, error, error_code, created_at
		FROM notification_log
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notification log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			errText    sql.NullString
			code       sql.NullString
			createdSec int64
		)
		if err := rows.Scan(&e.UserID, &e.Type, &e.DeliveryMethod, &e.MessageDelivered, &e.Message,
			&errText, &code, &createdSec); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		e.Error = errText.String
		e.ErrorCode = code.String
		e.CreatedAt = time.Unix(createdSec, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
