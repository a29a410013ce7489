package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperkey/unlock-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := testRecord(model.SessionUnlocked)

	mock.ExpectExec(`INSERT INTO unlock_sessions`).
		WithArgs(rec.ID, rec.OwnerID, rec.Filename, rec.MIMEType, string(rec.Status), "",
			rec.CandidatesTried, rec.Rounds, rec.CharCount, rec.DurationMs, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateSession(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := testRecord(model.SessionFailed)
	rec.FailureReason = model.FailureIncorrectPassword

	mock.ExpectQuery(`SELECT id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at FROM unlock_sessions WHERE id = \$1`).
		WithArgs(rec.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "filename", "mime_type", "status", "failure_reason",
			"candidates_tried", "rounds", "char_count", "duration_ms", "created_at",
		}).AddRow(rec.ID, rec.OwnerID, rec.Filename, rec.MIMEType, string(rec.Status), string(rec.FailureReason),
			rec.CandidatesTried, rec.Rounds, rec.CharCount, rec.DurationMs, rec.CreatedAt))

	got, err := s.GetSession(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, got.Status)
	assert.Equal(t, model.FailureIncorrectPassword, got.FailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, owner_id, filename`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSessions_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := testRecord(model.SessionUnlocked)

	mock.ExpectQuery(`SELECT id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at FROM unlock_sessions WHERE 1=1 AND status = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(string(model.SessionUnlocked), 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "filename", "mime_type", "status", "failure_reason",
			"candidates_tried", "rounds", "char_count", "duration_ms", "created_at",
		}).AddRow(rec.ID, rec.OwnerID, rec.Filename, rec.MIMEType, string(rec.Status), "",
			rec.CandidatesTried, rec.Rounds, rec.CharCount, rec.DurationMs, rec.CreatedAt))

	got, err := s.ListSessions(context.Background(), SessionFilter{Status: model.SessionUnlocked, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
