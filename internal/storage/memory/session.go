package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/storage"
)

// Storage is an in-memory implementation of the user and session
// repositories, used in tests and in single-process deployments without a
// database.
type Storage struct {
	mu       sync.RWMutex
	users    map[string]models.User        // keyed by user ID
	hashes   map[string][]byte             // user ID -> bcrypt hash
	sessions map[string][]models.Session   // user ID -> ordered session list
}

func NewStorage() *Storage {
	return &Storage{
		users:    make(map[string]models.User),
		hashes:   make(map[string][]byte),
		sessions: make(map[string][]models.Session),
	}
}

func (m *Storage) CreateUser(_ context.Context, email, username, password, role string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return nil, storage.ErrUserExists
		}
	}

	user := models.User{
		ID:       uuid.NewString(),
		Email:    email,
		Username: username,
		Role:     role,
	}
	m.users[user.ID] = user
	m.hashes[user.ID] = hash

	return &user, nil
}

func (m *Storage) FindByEmailOrUsername(_ context.Context, identity string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == identity || u.Username == identity {
			user := u
			return &user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *Storage) VerifyPassword(_ context.Context, userID, password string) (bool, error) {
	m.mu.RLock()
	hash, ok := m.hashes[userID]
	m.mu.RUnlock()

	if !ok {
		return false, storage.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Storage) AppendSession(_ context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.UserID] = append(m.sessions[session.UserID], session)
	return nil
}

func (m *Storage) ListSessions(_ context.Context, userID string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.sessions[userID]
	out := make([]models.Session, len(list))
	copy(out, list)
	return out, nil
}

// RemoveSession deletes and returns the session holding tokenID. It
// reports ErrSessionNotFound when the entry is already gone, so concurrent
// consumers of the same token cannot both succeed.
func (m *Storage) RemoveSession(_ context.Context, userID, tokenID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.sessions[userID]
	for i, s := range list {
		if s.TokenID == tokenID {
			removed := s
			m.sessions[userID] = append(list[:i:i], list[i+1:]...)
			return &removed, nil
		}
	}
	return nil, storage.ErrSessionNotFound
}

func (m *Storage) ClearSessions(_ context.Context, userID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.sessions[userID]
	delete(m.sessions, userID)
	return removed, nil
}
