package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MGallo-Code/storefront-auth/internal/store"
)

// TokenRepository persists one token per binding context.
// Satisfied by store.RedisStore and store.MemoryStore.
type TokenRepository interface {
	SetCSRFToken(ctx context.Context, rec store.CSRFRecord) error
	GetCSRFToken(ctx context.Context, binding string) (*store.CSRFRecord, error)
	DeleteCSRFToken(ctx context.Context, binding string) error
}

// Synchronized keeps the expected token server-side, keyed by session ID.
type Synchronized struct {
	repo TokenRepository
}

// NewSynchronized returns a Synchronized strategy over repo.
func NewSynchronized(repo TokenRepository) *Synchronized {
	return &Synchronized{repo: repo}
}

// Store records token as the only live token for binding.
func (s *Synchronized) Store(ctx context.Context, binding, token string) error {
	if binding == "" || binding == AnonymousContext {
		return ErrNoBindingContext
	}
	err := s.repo.SetCSRFToken(ctx, store.CSRFRecord{
		Token:     token,
		Context:   binding,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("storing csrf token: %w", err)
	}
	return nil
}

// Retrieve returns the live token for binding, or ErrTokenNotFound.
func (s *Synchronized) Retrieve(ctx context.Context, binding string) (string, error) {
	rec, err := s.repo.GetCSRFToken(ctx, binding)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("retrieving csrf token: %w", err)
	}
	// A record filed under another key would be a store bug; never accept it.
	if rec.Context != binding {
		return "", ErrBindingMismatch
	}
	return rec.Token, nil
}

// Revoke drops the token for binding.
func (s *Synchronized) Revoke(ctx context.Context, binding string) error {
	if err := s.repo.DeleteCSRFToken(ctx, binding); err != nil {
		return fmt.Errorf("revoking csrf token: %w", err)
	}
	return nil
}

// Issue generates a fresh random token and overwrites the previous one.
func (s *Synchronized) Issue(ctx context.Context, binding string) (Issued, error) {
	if binding == "" || binding == AnonymousContext {
		return Issued{}, ErrNoBindingContext
	}
	token, err := GenerateToken()
	if err != nil {
		return Issued{}, err
	}
	if err := s.Store(ctx, binding, token); err != nil {
		return Issued{}, err
	}
	return Issued{Token: token}, nil
}

// Verify compares presented with the stored token. The cookie is ignored.
func (s *Synchronized) Verify(ctx context.Context, binding, presented, _ string) error {
	if presented == "" {
		return ErrTokenMissing
	}
	if binding == "" || binding == AnonymousContext {
		return ErrNoBindingContext
	}
	expected, err := s.Retrieve(ctx, binding)
	if err != nil {
		return err
	}
	if !tokensEqual(presented, expected) {
		return ErrTokenMismatch
	}
	return nil
}

// RequiresSession is true: tokens are stored under the session ID.
func (s *Synchronized) RequiresSession() bool { return true }
