package sqlitelog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/stock-notifier/internal/notifications"
)

func openTemp(t *testing.T) *Sink {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSink_AppendAndRecent(t *testing.T) {
	s := openTemp(t)
	s.now = func() time.Time { return time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, notifications.Attempt{
		UserID: "c", Channel: notifications.ChannelEmail, Delivered: true, Body: "Your tracked stocks: TSLA",
	}))
	require.NoError(t, s.Append(ctx, notifications.Attempt{
		UserID: "b", Channel: notifications.ChannelSMS, Reason: "Invalid 'To' Phone Number", ErrorCode: "21211",
	}))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{
		UserID: "b", Type: "scheduled_update", DeliveryMethod: "sms",
		Message: "Invalid 'To' Phone Number",
		Error:   "Invalid 'To' Phone Number", ErrorCode: "21211",
		CreatedAt: time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
	}, entries[0])
	assert.Equal(t, "c", entries[1].UserID)
	assert.Equal(t, "email", entries[1].DeliveryMethod)
	assert.True(t, entries[1].MessageDelivered)
	assert.Equal(t, "Your tracked stocks: TSLA", entries[1].Message)
	assert.Empty(t, entries[1].Error)
}

func TestSink_ColumnNames(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, notifications.Attempt{
		UserID: "c", Channel: notifications.ChannelSMS, Delivered: true, Body: "Stocks: TSLA",
	}))

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM notification_log
		WHERE user_id = 'c' AND type = 'scheduled_update' AND delivery_method = 'sms'
			AND message_delivered = 1 AND message = 'Stocks: TSLA'
			AND error IS NULL AND error_code IS NULL`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSink_FailureWithoutReasonStoresNullError(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, notifications.Attempt{UserID: "a", Channel: notifications.ChannelEmail}))

	var (
		message string
		errText sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT message, error FROM notification_log WHERE user_id = 'a' AND message_delivered = 0`).
		Scan(&message, &errText)
	require.NoError(t, err)
	assert.Equal(t, "Unknown error", message)
	assert.False(t, errText.Valid)
}

func TestSink_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, notifications.Attempt{UserID: "a", Channel: notifications.ChannelEmail, Delivered: true, Body: "x"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSink_PruneLog(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	s.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Append(ctx, notifications.Attempt{UserID: "old", Channel: notifications.ChannelEmail, Delivered: true, Body: "x"}))
	s.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Append(ctx, notifications.Attempt{UserID: "new", Channel: notifications.ChannelEmail, Delivered: true, Body: "y"}))

	n, err := s.PruneLog(ctx, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].UserID)
}

func TestSink_ImplementsLogSink(t *testing.T) {
	var _ notifications.LogSink = openTemp(t)
}
