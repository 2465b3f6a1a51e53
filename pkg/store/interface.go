package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/snpLoans/pkg/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Roster is read access to the portal accounts.
type Roster interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// SessionStore keeps sessions by token. SetSession replaces a session as a
// whole and ClearSession removes it; neither updates individual fields.
type SessionStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SetSession(ctx context.Context, session *models.Session) error
	ClearSession(ctx context.Context, id uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Storage defines a backend holding both the roster and the sessions.
type Storage interface {
	Roster
	SessionStore

	ReplaceUsers(ctx context.Context, users []*models.User) error
	Close() error
}
