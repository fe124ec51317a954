package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the Postgres-backed Directory and LogSink. Queries go through the
// prepared statements registered in internal/db.
type Store struct {
	db Querier
}

// NewStore creates a Store.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// userRow mirrors the users columns. Every column is nullable here; defaults
// are applied once in toUser.
type userRow struct {
	ID               string
	Email            pgtype.Text
	PhoneCountryCode pgtype.Text
	PhoneNumber      pgtype.Text
	PhoneVerified    pgtype.Bool
	SMSOptedOut      pgtype.Bool
	Timezone         pgtype.Text
	StartHour        pgtype.Int4
	EndHour          pgtype.Int4
	EmailEnabled     pgtype.Bool
	SMSEnabled       pgtype.Bool
}

func (r userRow) toUser() User {
	u := User{
		ID:                    r.ID,
		Email:                 r.Email.String,
		PhoneCountryCode:      r.PhoneCountryCode.String,
		PhoneNumber:           r.PhoneNumber.String,
		PhoneVerified:         r.PhoneVerified.Valid && r.PhoneVerified.Bool,
		SMSOptedOut:           r.SMSOptedOut.Valid && r.SMSOptedOut.Bool,
		Timezone:              r.Timezone.String,
		NotificationStartHour: defaultStartHour,
		NotificationEndHour:   defaultEndHour,
		EmailEnabled:          r.EmailEnabled.Valid && r.EmailEnabled.Bool,
		SMSEnabled:            r.SMSEnabled.Valid && r.SMSEnabled.Bool,
	}
	if r.StartHour.Valid {
		u.NotificationStartHour = int(r.StartHour.Int32)
	}
	if r.EndHour.Valid {
		u.NotificationEndHour = int(r.EndHour.Int32)
	}
	return u
}

// FetchEligibleUsers returns users whose flags match f. Both flags select
// users with either channel enabled; no flags returns an empty list.
func (s *Store) FetchEligibleUsers(ctx context.Context, f Filter) ([]User, error) {
	var stmt string
	switch {
	case f.Email && f.SMS:
		stmt = "users_any_channel"
	case f.Email:
		stmt = "users_email"
	case f.SMS:
		stmt = "users_sms"
	default:
		return []User{}, nil
	}

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var r userRow
		if err := rows.Scan(
			&r.ID, &r.Email, &r.PhoneCountryCode, &r.PhoneNumber, &r.PhoneVerified,
			&r.SMSOptedOut, &r.Timezone, &r.StartHour, &r.EndHour,
			&r.EmailEnabled, &r.SMSEnabled,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, r.toUser())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	return users, nil
}

// LoadUserItems returns the user's tracked symbols; empty when none.
func (s *Store) LoadUserItems(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, "user_items", userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", ErrItemsUnavailable, userID, err)
	}
	defer rows.Close()

	items := []string{}
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("%w: scan symbol: %v", ErrItemsUnavailable, err)
		}
		items = append(items, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", ErrItemsUnavailable, userID, err)
	}
	return items, nil
}

// Append inserts one notification_log row.
func (s *Store) Append(ctx context.Context, a Attempt) error {
	var errCode *string
	if a.ErrorCode != "" {
		errCode = &a.ErrorCode
	}

	_, err := s.db.Exec(ctx, "insert_notification_log",
		a.UserID, LogType, string(a.Channel), a.Delivered, a.LogMessage(), a.LogError(), errCode,
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// PruneLog deletes notification_log rows created before cutoff.
func (s *Store) PruneLog(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "prune_notification_log", before)
	if err != nil {
		return 0, fmt.Errorf("prune notification log: %w", err)
	}
	return tag.RowsAffected(), nil
}
