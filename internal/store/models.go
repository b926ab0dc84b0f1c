// models.go -- Shared domain types for the store package.
// Used by the user stores (Postgres, Mongo) and the session stores (Redis, memory).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrNotFound is returned when a user, session, or CSRF record does not exist
// (or has expired). Callers use errors.Is to tell a miss from an infra failure.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by CreateUser when the email is already registered.
// Both user stores map their unique-violation error onto this sentinel.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrRateLimitExceeded is returned by Allow when the caller is locked out.
// Callers use errors.Is to distinguish rate limit rejections from Redis failures.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// User represents a stored credential record.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// SessionUser is the authenticated identity attached to a session.
type SessionUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Session is the server-side session record.
// ID is the base64url SHA-256 of the raw cookie token, never the token itself.
// User is nil while the session is anonymous.
type Session struct {
	ID        string       `json:"id"`
	User      *SessionUser `json:"user,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Authenticated reports whether a user identity is attached.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}

// CSRFRecord is the synchronized-token record stored next to a session.
// Context is the binding context (session ID) the token was issued for.
type CSRFRecord struct {
	Token     string    `json:"token"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
}

// RateLimit defines the policy for a rate-limited action.
// All three fields required, zero values disable the respective behaviour.
type RateLimit struct {
	MaxAttempts int           // attempts allowed within Window before lockout
	Window      time.Duration // rolling window for attempt counting
	LockoutTTL  time.Duration // how long to block after MaxAttempts is hit
}
