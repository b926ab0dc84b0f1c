// session.go

// Session lifecycle: Anonymous -> Authenticated -> Destroyed, plus cookie management.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MGallo-Code/storefront-auth/internal/store"
)

// SessionStore defines session persistence needed by the session manager.
// Satisfied by *store.RedisStore and *store.MemoryStore.
type SessionStore interface {
	// SaveSession writes sess with a fresh TTL and sets its ExpiresAt.
	SaveSession(ctx context.Context, sess *store.Session) error

	// GetSession returns the live session or store.ErrNotFound.
	GetSession(ctx context.Context, id string) (*store.Session, error)

	// TouchSession slides the session's (and its CSRF token's) expiry.
	TouchSession(ctx context.Context, id string) error

	// DeleteSession removes the session and its CSRF token.
	DeleteSession(ctx context.Context, id string) error

	// CheckHealth reports whether the backing store is reachable.
	CheckHealth(ctx context.Context) error
}

// CookieConfig controls the attributes of the session and CSRF cookies.
// Secure cookies get the __Host- prefix (or __Secure- when a Domain is set,
// since __Host- forbids one).
type CookieConfig struct {
	Secure bool
	Domain string
}

// Name returns the cookie name for base under this config.
func (c CookieConfig) Name(base string) string {
	switch {
	case c.Secure && c.Domain == "":
		return "__Host-" + base
	case c.Secure:
		return "__Secure-" + base
	default:
		return base
	}
}

// set writes an HttpOnly, SameSite=Lax cookie. maxAge 0 makes a browser-session cookie.
func (c CookieConfig) set(w http.ResponseWriter, base, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name(base),
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// clear overwrites the cookie with MaxAge=-1 to trigger browser deletion.
func (c CookieConfig) clear(w http.ResponseWriter, base string) {
	c.set(w, base, "", -1)
}

const sessionCookie = "session"

// GenerateToken returns a 256-bit random session token and its SHA-256 hash.
// Token goes in the cookie; hash goes in storage.
func GenerateToken() (*[32]byte, *[32]byte, error) {
	var token [32]byte
	_, err := rand.Read(token[:])
	if err != nil {
		return nil, nil, fmt.Errorf("generating token with rand: %w", err)
	}
	hash := sha256.Sum256(token[:])
	return &token, &hash, nil
}

// sessionIDFromCookie decodes a cookie value and returns the session ID it maps to.
func sessionIDFromCookie(value string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) != 32 {
		return "", false
	}
	hash := sha256.Sum256(raw)
	return base64.RawURLEncoding.EncodeToString(hash[:]), true
}

// SessionManager owns session state transitions and the session cookie.
type SessionManager struct {
	Store  SessionStore
	Cookie CookieConfig
}

// Resolve returns the live session named by the request's cookie.
// No cookie, a malformed cookie, or an unknown/expired session all yield (nil, nil):
// the request is anonymous. Only store failures return an error.
func (m *SessionManager) Resolve(ctx context.Context, r *http.Request) (*store.Session, error) {
	c, err := r.Cookie(m.Cookie.Name(sessionCookie))
	if err != nil || c.Value == "" {
		return nil, nil
	}
	id, ok := sessionIDFromCookie(c.Value)
	if !ok {
		return nil, nil
	}

	sess, err := m.Store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	return sess, nil
}

// Touch slides the session's idle expiry.
func (m *SessionManager) Touch(ctx context.Context, id string) error {
	return m.Store.TouchSession(ctx, id)
}

// Start creates a new anonymous session and sets its cookie.
func (m *SessionManager) Start(ctx context.Context, w http.ResponseWriter) (*store.Session, error) {
	sess, err := m.create(ctx, w, nil)
	if err != nil {
		return nil, err
	}
	sessionTransitions.WithLabelValues("started").Inc()
	return sess, nil
}

// Authenticate moves the client to a fresh session carrying user.
// The previous session (if any) is deleted, so an ID known before login is
// worthless after it. Failure to delete it is logged, not returned: the client
// already holds the new cookie.
func (m *SessionManager) Authenticate(ctx context.Context, w http.ResponseWriter, prev *store.Session, user store.SessionUser) (*store.Session, error) {
	sess, err := m.create(ctx, w, &user)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if err := m.Store.DeleteSession(ctx, prev.ID); err != nil {
			slog.WarnContext(ctx, "failed to delete previous session after authentication", "error", err)
		}
	}
	sessionTransitions.WithLabelValues("authenticated").Inc()
	return sess, nil
}

// Destroy deletes sess from the store and, only if that succeeded, clears the cookie.
// A store failure returns ErrSessionTeardownFailed and leaves the cookie in place.
func (m *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, sess *store.Session) error {
	if sess != nil {
		if err := m.Store.DeleteSession(ctx, sess.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrSessionTeardownFailed, err)
		}
		sessionTransitions.WithLabelValues("destroyed").Inc()
	}
	m.Cookie.clear(w, sessionCookie)
	return nil
}

func (m *SessionManager) create(ctx context.Context, w http.ResponseWriter, user *store.SessionUser) (*store.Session, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	sess := &store.Session{
		ID:        base64.RawURLEncoding.EncodeToString(hash[:]),
		User:      user,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.Store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	// No MaxAge: the server-side idle TTL decides when the session ends.
	m.Cookie.set(w, sessionCookie, base64.RawURLEncoding.EncodeToString(token[:]), 0)
	return sess, nil
}
