// Package access decides who may see which loan account and owns the
// login and logout of portal sessions.
package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/snpLoans/pkg/models"
	"github.com/mcclellann/snpLoans/pkg/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for any failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated means the caller has no session and must log in.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound means the requested account does not exist or is not a member account.
	ErrNotFound = errors.New("user not found or access denied")
)

// DefaultSessionTTL is how long a session lives when the gate is built
// without an explicit lifetime.
const DefaultSessionTTL = 24 * time.Hour

// Principal is the caller as seen by the gate. The set of principals is
// closed: Anonymous, Member and Manager.
type Principal interface {
	principal()
}

type Anonymous struct{}

// Member is a logged-in borrower. Members only ever see their own account.
type Member struct {
	Username string
}

// Manager may see the account of any member.
type Manager struct {
	Username string
}

func (Anonymous) principal() {}
func (Member) principal() {}
func (Manager) principal() {}

// PrincipalOf maps a session to its principal. A missing session or an
// unrecognised role is anonymous.
func PrincipalOf(s *models.Session) Principal {
	if s == nil {
		return Anonymous{}
	}
	switch s.Role {
	case models.RoleUser:
		return Member{Username: s.Username}
	case models.RoleManager:
		return Manager{Username: s.Username}
	default:
		return Anonymous{}
	}
}

// Gate authorizes account views against the roster and manages sessions.
type Gate struct {
	roster   store.Roster
	sessions store.SessionStore
	ttl      time.Duration
	now      func() time.Time
}

// NewGate creates a Gate. A non-positive ttl uses DefaultSessionTTL.
func NewGate(roster store.Roster, sessions store.SessionStore, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Gate{
		roster:   roster,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Authorize resolves the account p may view when asking for requested.
// Members are always given their own account whatever they ask for.
func (g *Gate) Authorize(ctx context.Context, p Principal, requested string) (*models.User, error) {
	switch p := p.(type) {
	case Member:
		return g.member(ctx, p.Username)
	case Manager:
		return g.member(ctx, requested)
	default:
		return nil, ErrNotAuthenticated
	}
}

// Accounts lists the accounts p may browse: a member's own account, or
// every member account for a manager.
func (g *Gate) Accounts(ctx context.Context, p Principal) ([]*models.User, error) {
	switch p := p.(type) {
	case Member:
		u, err := g.member(ctx, p.Username)
		if err != nil {
			return nil, err
		}
		return []*models.User{u}, nil
	case Manager:
		return g.members(ctx)
	default:
		return nil, ErrNotAuthenticated
	}
}

func (g *Gate) member(ctx context.Context, username string) (*models.User, error) {
	u, err := g.roster.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up %s: %w", username, err)
	}
	if u.Role != models.RoleUser {
		return nil, ErrNotFound
	}
	return u, nil
}

func (g *Gate) members(ctx context.Context) ([]*models.User, error) {
	users, err := g.roster.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	members := make([]*models.User, 0, len(users))
	for _, u := range users {
		if u.Role == models.RoleUser {
			members = append(members, u)
		}
	}
	return members, nil
}

// Login starts a session when username, password and role all match one
// roster account. Every mismatch yields ErrInvalidCredentials.
func (g *Gate) Login(ctx context.Context, username, password string, role models.Role) (*models.Session, error) {
	u, err := g.roster.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up %s: %w", username, err)
	}
	if !passwordMatches(u.Password, password) || u.Role != role {
		return nil, ErrInvalidCredentials
	}

	now := g.now().UTC()
	session := &models.Session{
		ID:        uuid.New(),
		Username:  u.Username,
		Role:      u.Role,
		Profile:   u.Profile,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.sessions.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return session, nil
}

// Logout ends the session with the given token. Ending an unknown session
// is not an error.
func (g *Gate) Logout(ctx context.Context, token uuid.UUID) error {
	if err := g.sessions.ClearSession(ctx, token); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Current returns the live session for token. Unknown and expired sessions
// yield ErrNotAuthenticated; expired ones are cleared.
func (g *Gate) Current(ctx context.Context, token uuid.UUID) (*models.Session, error) {
	s, err := g.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if s.Expired(g.now()) {
		if err := g.sessions.ClearSession(ctx, token); err != nil {
			return nil, fmt.Errorf("failed to clear expired session: %w", err)
		}
		return nil, ErrNotAuthenticated
	}
	return s, nil
}

// PurgeExpired removes sessions that have run out.
func (g *Gate) PurgeExpired(ctx context.Context) (int, error) {
	return g.sessions.DeleteExpiredSessions(ctx, g.now())
}

// passwordMatches compares a roster password with the one presented.
// Roster entries may hold bcrypt hashes instead of plaintext.
func passwordMatches(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
