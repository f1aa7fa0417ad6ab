package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/graphwatch/pkg/model"
)

func testRecords() []model.SubscriptionRecord {
	return []model.SubscriptionRecord{
		{
			UserID:         "user-1",
			ID:             "S1",
			Resource:       "chats/A/messages",
			ExpirationTime: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			UserID:         "user-1",
			ID:             "S2",
			Resource:       "chats/B/messages",
			ExpirationTime: time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
		},
	}
}

func newTestStore(t *testing.T) *SQLiteSessionStore {
	t.Helper()
	s, err := NewSQLiteSessionStore(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	records := testRecords()
	require.NoError(t, s.Save(ctx, records))

	got := s.Load(ctx)
	require.Equal(t, records, got)
}

func TestSQLiteStoreLoadEmptyWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	require.Empty(t, s.Load(context.Background()))
}

func TestSQLiteStoreLoadEmptyOnCorruptEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (key, value) VALUES (?, ?)`,
		subscriptionsKey, "{not json")
	require.NoError(t, err)

	require.Empty(t, s.Load(ctx))
}

func TestSQLiteStoreSaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Save(ctx, testRecords()))
	require.NoError(t, s.Save(ctx, testRecords()[:1]))

	got := s.Load(ctx)
	require.Len(t, got, 1)
	require.Equal(t, "S1", got[0].ID)
}

func TestSQLiteStoreSaveNilClearsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Save(ctx, testRecords()))
	require.NoError(t, s.Save(ctx, nil))
	require.Empty(t, s.Load(ctx))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	records := testRecords()
	require.NoError(t, s.Save(ctx, records))
	require.Equal(t, records, s.Load(ctx))

	// snapshot is a copy, not shared state
	got := s.Load(ctx)
	got[0].ID = "mutated"
	require.Equal(t, "S1", s.Load(ctx)[0].ID)
}
