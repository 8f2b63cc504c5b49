package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE idempotency_key (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		result TEXT,
		expires_at DATETIME NOT NULL,
		created_at DATETIME
	)`).Error)
	return conn
}

func TestTryBeginFirstExecutionWins(t *testing.T) {
	store := NewStore(newTestDB(t))

	got, err := store.TryBegin(context.Background(), "points:add:abc", map[string]any{"type": "POINTS_ADD"}, 24*time.Hour)
	require.NoError(t, err)
	require.True(t, got.IsNew)
	require.NotNil(t, got.Record)
	require.Equal(t, "points:add:abc", got.Record.Key)
}

func TestTryBeginDuplicateIsDetectedNotRaised(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.TryBegin(ctx, "points:add:abc", map[string]any{"n": 1}, 24*time.Hour)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := store.TryBegin(ctx, "points:add:abc", map[string]any{"n": 2}, 24*time.Hour)
	require.NoError(t, err, "duplicate keys are an expected outcome, never an error")
	require.False(t, second.IsNew)
	require.NotNil(t, second.Record)
	require.Equal(t, first.Record.ID, second.Record.ID, "loser must see the winner's record")
}

func TestTryBeginDuplicateInsideCallerTransaction(t *testing.T) {
	conn := newTestDB(t)
	store := NewStore(conn)
	ctx := context.Background()

	first, err := store.TryBegin(ctx, "points:add:retry", map[string]any{"n": 1}, 24*time.Hour)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// A retried operation replays the key inside a fresh transaction. The
	// duplicate must come back as a detection, not a raised constraint
	// error, and the transaction must stay usable for the statements the
	// caller runs after it.
	err = conn.Transaction(func(tx *gorm.DB) error {
		second, beginErr := store.WithTx(tx).TryBegin(ctx, "points:add:retry", map[string]any{"n": 2}, 24*time.Hour)
		require.NoError(t, beginErr)
		require.False(t, second.IsNew)
		require.NotNil(t, second.Record)
		require.Equal(t, first.Record.ID, second.Record.ID)

		var count int64
		return tx.Raw("SELECT COUNT(*) FROM idempotency_key").Scan(&count).Error
	})
	require.NoError(t, err)
}

func TestTryBeginValidation(t *testing.T) {
	store := NewStore(newTestDB(t))

	_, err := store.TryBegin(context.Background(), "  ", nil, time.Hour)
	require.Error(t, err)

	_, err = store.TryBegin(context.Background(), "key", nil, 0)
	require.Error(t, err)
}

func TestPurgeExpired(t *testing.T) {
	conn := newTestDB(t)
	store := NewStore(conn)
	ctx := context.Background()

	_, err := store.TryBegin(ctx, "fresh", nil, 24*time.Hour)
	require.NoError(t, err)
	_, err = store.TryBegin(ctx, "stale", nil, time.Millisecond)
	require.NoError(t, err)

	purged, err := store.PurgeExpired(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	_, err = store.Find(ctx, "fresh")
	require.NoError(t, err)
	_, err = store.Find(ctx, "stale")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
