// memory.go -- In-process session and CSRF token store (SESSION_STORE=memory).
//
// Backed by expiring LRUs: entries vanish after ttl without a touch, and the
// oldest sessions are evicted once size is reached. Single-instance only;
// restarting the process logs everyone out.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore mirrors RedisStore's contract in memory.
type MemoryStore struct {
	// mu makes read-modify-write sequences (touch, delete pair) atomic;
	// the LRUs are individually safe for concurrent use.
	mu       sync.Mutex
	sessions *expirable.LRU[string, Session]
	tokens   *expirable.LRU[string, CSRFRecord]
	ttl      time.Duration
}

// NewMemoryStore holds up to size sessions, each expiring after ttl idle.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: expirable.NewLRU[string, Session](size, nil, ttl),
		tokens:   expirable.NewLRU[string, CSRFRecord](size, nil, ttl),
		ttl:      ttl,
	}
}

// CheckHealth always succeeds.
func (s *MemoryStore) CheckHealth(context.Context) error {
	return nil
}

// SaveSession stores a copy of sess and sets sess.ExpiresAt.
func (s *MemoryStore) SaveSession(_ context.Context, sess *Session) error {
	sess.ExpiresAt = time.Now().Add(s.ttl)
	s.mu.Lock()
	s.sessions.Add(sess.ID, *sess)
	s.mu.Unlock()
	return nil
}

// GetSession returns a copy of the session, or ErrNotFound.
func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// TouchSession re-adds the session and its token, restarting both TTLs.
func (s *MemoryStore) TouchSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return ErrNotFound
	}
	sess.ExpiresAt = time.Now().Add(s.ttl)
	s.sessions.Add(id, sess)

	if rec, ok := s.tokens.Get(id); ok {
		s.tokens.Add(id, rec)
	}
	return nil
}

// DeleteSession removes the session and its token.
func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	s.sessions.Remove(id)
	s.tokens.Remove(id)
	s.mu.Unlock()
	return nil
}

// SetCSRFToken replaces the token for rec.Context.
func (s *MemoryStore) SetCSRFToken(_ context.Context, rec CSRFRecord) error {
	s.mu.Lock()
	s.tokens.Add(rec.Context, rec)
	s.mu.Unlock()
	return nil
}

// GetCSRFToken returns the live token for binding, or ErrNotFound.
func (s *MemoryStore) GetCSRFToken(_ context.Context, binding string) (*CSRFRecord, error) {
	rec, ok := s.tokens.Get(binding)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// DeleteCSRFToken drops the token for binding.
func (s *MemoryStore) DeleteCSRFToken(_ context.Context, binding string) error {
	s.mu.Lock()
	s.tokens.Remove(binding)
	s.mu.Unlock()
	return nil
}
