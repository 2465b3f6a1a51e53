package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/snpLoans/pkg/models"
)

// MemoryStore keeps the roster and sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	users    []*models.User
	byName   map[string]*models.User
	sessions map[uuid.UUID]models.Session
}

var _ Storage = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore holding users in the given order.
func NewMemoryStore(users []*models.User) *MemoryStore {
	m := &MemoryStore{sessions: make(map[uuid.UUID]models.Session)}
	m.setUsers(users)
	return m
}

func (m *MemoryStore) setUsers(users []*models.User) {
	m.users = make([]*models.User, 0, len(users))
	m.byName = make(map[string]*models.User, len(users))
	for _, u := range users {
		c := *u
		m.users = append(m.users, &c)
		m.byName[c.Username] = &c
	}
}

// ReplaceUsers swaps the whole roster.
func (m *MemoryStore) ReplaceUsers(ctx context.Context, users []*models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setUsers(users)
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		c := *u
		users = append(users, &c)
	}
	return users, nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) SetSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *MemoryStore) ClearSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
