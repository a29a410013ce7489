package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperkey/unlock-cli/internal/config"
	"github.com/paperkey/unlock-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRecord(status model.SessionStatus) model.SessionRecord {
	return model.SessionRecord{
		ID:              uuid.NewString(),
		OwnerID:         "user-1",
		Filename:        "statement.pdf",
		MIMEType:        "application/pdf",
		Status:          status,
		CandidatesTried: 7,
		Rounds:          2,
		CharCount:       4096,
		DurationMs:      1250,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLite_CreateAndGetSession(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := testRecord(model.SessionUnlocked)
	require.NoError(t, s.CreateSession(ctx, rec))

	got, err := s.GetSession(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, model.SessionUnlocked, got.Status)
	assert.Equal(t, 7, got.CandidatesTried)
	assert.Equal(t, 2, got.Rounds)
	assert.Equal(t, int64(1250), got.DurationMs)
}

func TestSQLite_GetSession_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListSessions_Filters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	unlocked := testRecord(model.SessionUnlocked)
	failed := testRecord(model.SessionFailed)
	failed.FailureReason = model.FailureExhausted
	other := testRecord(model.SessionOpen)
	other.OwnerID = "user-2"
	for _, rec := range []model.SessionRecord{unlocked, failed, other} {
		require.NoError(t, s.CreateSession(ctx, rec))
	}

	all, err := s.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byStatus, err := s.ListSessions(ctx, SessionFilter{Status: model.SessionFailed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, model.FailureExhausted, byStatus[0].FailureReason)

	byOwner, err := s.ListSessions(ctx, SessionFilter{OwnerID: "user-2"})
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, model.SessionOpen, byOwner[0].Status)

	limited, err := s.ListSessions(ctx, SessionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestOpen_SQLiteDriver(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "open.db"),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.CreateSession(context.Background(), testRecord(model.SessionOpen)))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
