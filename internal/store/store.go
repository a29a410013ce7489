// Package store persists the session journal: one audit row per concluded
// unlock session. Two drivers share the interface — SQLite for single-host
// CLI use, Postgres for the served deployment.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/paperkey/unlock-cli/internal/config"
	"github.com/paperkey/unlock-cli/internal/model"
)

// SessionFilter specifies criteria for listing journal rows.
type SessionFilter struct {
	Status  model.SessionStatus `json:"status,omitempty"`
	OwnerID string              `json:"owner_id,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Offset  int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the session journal.
type Store interface {
	CreateSession(ctx context.Context, rec model.SessionRecord) error
	GetSession(ctx context.Context, id string) (*model.SessionRecord, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store named by the config driver and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
