// middleware.go

// Session resolution middleware and the per-request state it produces.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MGallo-Code/storefront-auth/internal/csrf"
	"github.com/MGallo-Code/storefront-auth/internal/store"
)

// CSRFHeader carries the presented token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const requestStateKey contextKey = "request_state"

// RequestState is everything the gate knows about the caller, built once by LoadSession.
type RequestState struct {
	// SessionID is "" for anonymous callers.
	SessionID string
	Session   *store.Session
	// Binding is the CSRF binding context: SessionID, or csrf.AnonymousContext.
	Binding        string
	PresentedToken string
	CSRFCookie     string
}

// StateFromContext returns the state LoadSession stored.
// Without LoadSession it returns an anonymous state with no token or cookie.
func StateFromContext(ctx context.Context) *RequestState {
	if st, ok := ctx.Value(requestStateKey).(*RequestState); ok {
		return st
	}
	return &RequestState{Binding: csrf.AnonymousContext}
}

func withState(ctx context.Context, st *RequestState) context.Context {
	return context.WithValue(ctx, requestStateKey, st)
}

// setSession points the state at sess (or back to anonymous when nil).
func (st *RequestState) setSession(sess *store.Session) {
	st.Session = sess
	if sess == nil {
		st.SessionID = ""
		st.Binding = csrf.AnonymousContext
		return
	}
	st.SessionID = sess.ID
	st.Binding = sess.ID
}

// LoadSession resolves the session cookie, slides its expiry, and stores a
// RequestState in the context. Unknown or expired sessions are anonymous.
// A session store failure is a 500: the binding context cannot be known.
func (h *AuthHandler) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.Sessions.Resolve(r.Context(), r)
		if err != nil {
			InternalServerError(w, r, err)
			return
		}

		if sess != nil {
			if err := h.Sessions.Touch(r.Context(), sess.ID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					// Expired between lookup and touch.
					logDebug(r, "session expired during request")
					sess = nil
				} else {
					logWarn(r, "failed to slide session expiry", "error", err)
				}
			}
		}

		st := &RequestState{PresentedToken: r.Header.Get(CSRFHeader)}
		st.setSession(sess)
		if c, err := r.Cookie(h.Sessions.Cookie.Name(csrfCookie)); err == nil {
			st.CSRFCookie = c.Value
		}

		next.ServeHTTP(w, r.WithContext(withState(r.Context(), st)))
	})
}
