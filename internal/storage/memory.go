package storage

import (
	"blog_auth/internal/models"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryStorage is an in-process Storage. It enforces the same email
// uniqueness and expiry rules as PostgresStorage.
type MemoryStorage struct {
	mu sync.RWMutex

	users    map[uuid.UUID]models.User
	byEmail  map[string]uuid.UUID
	sessions map[uuid.UUID]models.Session

	now func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[uuid.UUID]models.User),
		byEmail:  make(map[string]uuid.UUID),
		sessions: make(map[uuid.UUID]models.Session),
		now:      time.Now,
	}
}

// WithClock sets the clock used for created_at columns.
func (m *MemoryStorage) WithClock(now func() time.Time) *MemoryStorage {
	m.now = now
	return m
}

func (m *MemoryStorage) CreateUser(_ context.Context, user models.User) (models.User, error) {
	const op = "storage.CreateUser"

	id, err := uuid.NewV4()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[user.Email]; ok {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}

	user.ID = id
	user.CreatedAt = m.now().UTC()
	m.users[id] = user
	m.byEmail[user.Email] = id

	return user, nil
}

func (m *MemoryStorage) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("storage.GetUserByID: %w", ErrNotFound)
	}

	return user, nil
}

func (m *MemoryStorage) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return models.User{}, fmt.Errorf("storage.GetUserByEmail: %w", ErrNotFound)
	}

	return m.users[id], nil
}

func (m *MemoryStorage) CreateSession(_ context.Context, userID uuid.UUID, expiresAt time.Time) (models.Session, error) {
	const op = "storage.CreateSession"

	id, err := uuid.NewV4()
	if err != nil {
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	session := models.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	return session, nil
}

func (m *MemoryStorage) GetSessionByID(_ context.Context, sessionID uuid.UUID) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, fmt.Errorf("storage.GetSessionByID: %w", ErrNotFound)
	}

	return session, nil
}

func (m *MemoryStorage) ExtendSession(_ context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("storage.ExtendSession: %w", ErrNotFound)
	}

	if expiresAt.After(session.ExpiresAt) {
		session.ExpiresAt = expiresAt
		m.sessions[sessionID] = session
	}

	return nil
}

func (m *MemoryStorage) DeleteSession(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	return nil
}

func (m *MemoryStorage) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}

	return n, nil
}

func (m *MemoryStorage) Close() {}
