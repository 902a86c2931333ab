// Package store persists render sessions and their pages. Two backends
// implement the same interface: SQLite for single-operator use and
// Postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/sells-group/render-cli/internal/model"
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status       model.SessionStatus `json:"status,omitempty"`
	CreatedAfter time.Time           `json:"created_after,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
	Offset       int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for render sessions.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *model.Session) error
	CompleteSession(ctx context.Context, sessionID string, status model.SessionStatus, pagesFailed int) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	// Pages
	SavePage(ctx context.Context, p *model.Page) error
	ListPages(ctx context.Context, sessionID string) ([]model.Page, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
