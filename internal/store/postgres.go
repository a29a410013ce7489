package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/paperkey/unlock-cli/internal/db"
	"github.com/paperkey/unlock-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. The
// journal is insert-heavy; the reads back a served deployment's session list.
var preparedStatements = map[string]string{
	"insert_session": `INSERT INTO unlock_sessions
		(id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"get_session": `SELECT id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at
		FROM unlock_sessions WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
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
	duration_ms      BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_unlock_sessions_status ON unlock_sessions(status);
CREATE INDEX IF NOT EXISTS idx_unlock_sessions_owner ON unlock_sessions(owner_id);
CREATE INDEX IF NOT EXISTS idx_unlock_sessions_created_at ON unlock_sessions(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, rec model.SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO unlock_sessions
			(id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.OwnerID, rec.Filename, rec.MIMEType, string(rec.Status), string(rec.FailureReason),
		rec.CandidatesTried, rec.Rounds, rec.CharCount, rec.DurationMs, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert session %s", rec.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.SessionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at
		 FROM unlock_sessions WHERE id = $1`, id)

	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("postgres: session %s not found", id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionRecord, error) {
	query := `SELECT id, owner_id, filename, mime_type, status, failure_reason, candidates_tried, rounds, char_count, duration_ms, created_at
		 FROM unlock_sessions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += fmt.Sprintf(` AND owner_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions rows")
}
