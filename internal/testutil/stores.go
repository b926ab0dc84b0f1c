// stores.go
//
// Shared mock implementations of auth.UserStore, auth.SessionStore,
// csrf.TokenRepository and auth.RateLimiter.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/MGallo-Code/storefront-auth/internal/store"
)

// MockUserStore implements auth.UserStore for tests.

// Always stateful...Users is a map keyed by email, like a real store with a unique index.
// Use *Err fields to inject errors for specific operations.
// Use NewMockUserStore to seed users; or construct directly and set *Err fields for error-path tests.
type MockUserStore struct {
	// Error injection...zero value means no error
	CreateUserErr     error
	GetUserByEmailErr error
	HealthErr         error

	Users map[string]*store.User // keyed by email

	mu sync.Mutex
}

// NewMockUserStore returns a MockUserStore seeded with the given users, indexed by email.
func NewMockUserStore(users ...*store.User) *MockUserStore {
	ms := &MockUserStore{Users: make(map[string]*store.User)}
	for _, u := range users {
		ms.Users[u.Email] = u
	}
	return ms
}

// CreateUser stores a copy of u. The check-and-insert runs under one lock,
// so concurrent inserts of one email resolve to a single success.
func (m *MockUserStore) CreateUser(_ context.Context, u *store.User) error {
	if m.CreateUserErr != nil {
		return m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Users == nil {
		m.Users = make(map[string]*store.User)
	}
	if _, exists := m.Users[u.Email]; exists {
		return store.ErrDuplicateEmail
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.Users[u.Email] = &cp
	return nil
}

func (m *MockUserStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	if m.GetUserByEmailErr != nil {
		return nil, m.GetUserByEmailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// UserCount returns how many users are stored.
func (m *MockUserStore) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Users)
}

func (m *MockUserStore) CheckHealth(context.Context) error {
	return m.HealthErr
}

// MockSessionStore implements auth.SessionStore and csrf.TokenRepository for tests.
// Sessions and Tokens are maps keyed by session ID / binding context.
// No expiry: tests that need TTL behaviour use store.MemoryStore or miniredis.
type MockSessionStore struct {
	// Error injection...zero value means no error
	SaveSessionErr   error
	GetSessionErr    error
	TouchSessionErr  error
	DeleteSessionErr error
	SetTokenErr      error
	GetTokenErr      error
	DeleteTokenErr   error
	HealthErr        error

	Sessions map[string]store.Session
	Tokens   map[string]store.CSRFRecord

	// Touches counts TouchSession calls per session ID.
	Touches map[string]int

	mu sync.Mutex
}

// NewMockSessionStore returns an empty MockSessionStore.
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		Sessions: make(map[string]store.Session),
		Tokens:   make(map[string]store.CSRFRecord),
		Touches:  make(map[string]int),
	}
}

func (m *MockSessionStore) SaveSession(_ context.Context, sess *store.Session) error {
	if m.SaveSessionErr != nil {
		return m.SaveSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.ExpiresAt = time.Now().Add(time.Hour)
	m.Sessions[sess.ID] = *sess
	return nil
}

func (m *MockSessionStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.Sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (m *MockSessionStore) TouchSession(_ context.Context, id string) error {
	if m.TouchSessionErr != nil {
		return m.TouchSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sessions[id]; !ok {
		return store.ErrNotFound
	}
	m.Touches[id]++
	return nil
}

func (m *MockSessionStore) DeleteSession(_ context.Context, id string) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, id)
	delete(m.Tokens, id)
	return nil
}

func (m *MockSessionStore) CheckHealth(context.Context) error {
	return m.HealthErr
}

func (m *MockSessionStore) SetCSRFToken(_ context.Context, rec store.CSRFRecord) error {
	if m.SetTokenErr != nil {
		return m.SetTokenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tokens[rec.Context] = rec
	return nil
}

func (m *MockSessionStore) GetCSRFToken(_ context.Context, binding string) (*store.CSRFRecord, error) {
	if m.GetTokenErr != nil {
		return nil, m.GetTokenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Tokens[binding]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *MockSessionStore) DeleteCSRFToken(_ context.Context, binding string) error {
	if m.DeleteTokenErr != nil {
		return m.DeleteTokenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Tokens, binding)
	return nil
}

// SessionCount returns how many sessions are stored.
func (m *MockSessionStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}

// MockRateLimiter implements auth.RateLimiter.
// AllowErr is returned from every call; Keys records the keys seen.
type MockRateLimiter struct {
	AllowErr error
	Keys     []string

	mu sync.Mutex
}

func (m *MockRateLimiter) Allow(_ context.Context, key string, _ store.RateLimit) error {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()
	return m.AllowErr
}
