package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/paperkey/unlock-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS unlock_sessions (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL DEFAULT '',
	filename         TEXT NOT NULL,
	mime_type        TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	failure_reason   TEXT NOT NULL DEFAULT '',
	candidates_tried INTEGER NOT NULL DEFAULT 0,
	rounds           INTEGER NOT NULL DEFAULT 0,
	char_count       INTEGER NOT NULL DEFAULT 0,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_unlock_sessions_status ON unlock_sessions(status);
CREATE INDEX IF NOT EXISTS idx_unlock_sessions_owner ON unlock_sessions(owner_id);
CREATE INDEX IF NOT EXISTS idx_unlock_sessions_created_at ON unlock_sessions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, rec model.SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unlock_sessions
			(id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.Filename, rec.MIMEType, string(rec.Status), string(rec.FailureReason),
		rec.CandidatesTried, rec.Rounds, rec.CharCount, rec.DurationMs, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert session %s", rec.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at
		 FROM unlock_sessions WHERE id = ?`, id)

	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("sqlite: session %s not found", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionRecord, error) {
	query := `SELECT id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at
		 FROM unlock_sessions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions rows")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.SessionRecord, error) {
	var (
		rec     model.SessionRecord
		status  string
		failure string
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Filename, &rec.MIMEType, &status, &failure,
		&rec.CandidatesTried, &rec.Rounds, &rec.CharCount, &rec.DurationMs, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = model.SessionStatus(status)
	rec.FailureReason = model.FailureReason(failure)
	return &rec, nil
}
