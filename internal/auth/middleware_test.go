// middleware_test.go

// unit tests for LoadSession middleware and RequestState.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MGallo-Code/storefront-auth/internal/csrf"
	"github.com/MGallo-Code/storefront-auth/internal/store"
	"github.com/gofrs/uuid/v5"
)

// stateCapture records the RequestState LoadSession handed downstream.
type stateCapture struct {
	called bool
	state  RequestState
}

// capturingHandler records request state then responds 200.
func capturingHandler(cap *stateCapture) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.called = true
		cap.state = *StateFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// sessionFixture returns deterministic session material for LoadSession tests.
//   - cookie: base64-encoded raw token (for the __Host-session cookie value)
//   - sessionID: base64url SHA-256(token), the store key the middleware looks up
func sessionFixture() (cookie, sessionID string) {
	var token [32]byte
	for i := range token {
		token[i] = byte(i + 1)
	}
	h := sha256.Sum256(token[:])
	return base64.RawURLEncoding.EncodeToString(token[:]), base64.RawURLEncoding.EncodeToString(h[:])
}

// --- LoadSession ---

func TestLoadSession(t *testing.T) {
	cookie, sessionID := sessionFixture()
	user := &store.SessionUser{ID: uuid.Must(uuid.NewV7()), Email: "a@x.com"}

	newRequest := func(cookieValue string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		if cookieValue != "" {
			r.AddCookie(&http.Cookie{Name: "__Host-session", Value: cookieValue})
		}
		return r
	}

	t.Run("no cookie is anonymous", func(t *testing.T) {
		th := newTestHandler()
		cap := &stateCapture{}
		w := httptest.NewRecorder()
		th.LoadSession(capturingHandler(cap)).ServeHTTP(w, newRequest(""))

		if !cap.called {
			t.Fatal("next handler should run")
		}
		if cap.state.Session != nil || cap.state.SessionID != "" {
			t.Errorf("expected anonymous state, got %+v", cap.state)
		}
		if cap.state.Binding != csrf.AnonymousContext {
			t.Errorf("Binding: expected %q, got %q", csrf.AnonymousContext, cap.state.Binding)
		}
	})

	t.Run("valid cookie resolves and touches the session", func(t *testing.T) {
		th := newTestHandler()
		th.sessions.Sessions[sessionID] = store.Session{ID: sessionID, User: user}
		cap := &stateCapture{}
		w := httptest.NewRecorder()
		th.LoadSession(capturingHandler(cap)).ServeHTTP(w, newRequest(cookie))

		if cap.state.SessionID != sessionID || cap.state.Binding != sessionID {
			t.Errorf("state: expected session %s, got %+v", sessionID, cap.state)
		}
		if !cap.state.Session.Authenticated() || cap.state.Session.User.ID != user.ID {
			t.Errorf("session user: got %+v", cap.state.Session)
		}
		if th.sessions.Touches[sessionID] != 1 {
			t.Errorf("expected 1 touch, got %d", th.sessions.Touches[sessionID])
		}
		if len(w.Result().Cookies()) != 0 {
			t.Error("LoadSession must not set cookies")
		}
	})

	t.Run("malformed cookie is anonymous", func(t *testing.T) {
		th := newTestHandler()
		th.sessions.GetSessionErr = errors.New("must not be called")
		for _, bad := range []string{"!!!not-base64!!!", base64.RawURLEncoding.EncodeToString([]byte("short"))} {
			cap := &stateCapture{}
			w := httptest.NewRecorder()
			th.LoadSession(capturingHandler(cap)).ServeHTTP(w, newRequest(bad))
			if !cap.called || cap.state.Session != nil {
				t.Errorf("cookie %q: expected anonymous pass-through, got %+v", bad, cap.state)
			}
		}
	})

	t.Run("unknown session is anonymous", func(t *testing.T) {
		th := newTestHandler()
		cap := &stateCapture{}
		th.LoadSession(capturingHandler(cap)).ServeHTTP(httptest.NewRecorder(), newRequest(cookie))
		if !cap.called || cap.state.Session != nil {
			t.Errorf("expected anonymous pass-through, got %+v", cap.state)
		}
	})

	t.Run("session store failure returns 500", func(t *testing.T) {
		th := newTestHandler()
		th.sessions.GetSessionErr = errors.New("redis down")
		cap := &stateCapture{}
		w := httptest.NewRecorder()
		th.LoadSession(capturingHandler(cap)).ServeHTTP(w, newRequest(cookie))

		assertInternalServerError(t, w)
		if cap.called {
			t.Error("next handler should not run")
		}
	})

	t.Run("session expiring during touch is anonymous", func(t *testing.T) {
		th := newTestHandler()
		th.sessions.Sessions[sessionID] = store.Session{ID: sessionID, User: user}
		th.sessions.TouchSessionErr = store.ErrNotFound
		cap := &stateCapture{}
		th.LoadSession(capturingHandler(cap)).ServeHTTP(httptest.NewRecorder(), newRequest(cookie))
		if cap.state.Session != nil || cap.state.Binding != csrf.AnonymousContext {
			t.Errorf("expected anonymous state, got %+v", cap.state)
		}
	})

	t.Run("touch failure keeps the session", func(t *testing.T) {
		th := newTestHandler()
		th.sessions.Sessions[sessionID] = store.Session{ID: sessionID, User: user}
		th.sessions.TouchSessionErr = errors.New("redis timeout")
		cap := &stateCapture{}
		th.LoadSession(capturingHandler(cap)).ServeHTTP(httptest.NewRecorder(), newRequest(cookie))
		if cap.state.SessionID != sessionID {
			t.Errorf("expected session %s to survive, got %+v", sessionID, cap.state)
		}
	})

	t.Run("captures presented token and csrf cookie", func(t *testing.T) {
		th := newTestHandler()
		r := newRequest("")
		r.Header.Set("X-CSRF-TOKEN", "presented")
		r.AddCookie(&http.Cookie{Name: "__Host-csrf", Value: "signed-cookie"})
		r.AddCookie(&http.Cookie{Name: "csrf", Value: "unprefixed-must-be-ignored"})
		cap := &stateCapture{}
		th.LoadSession(capturingHandler(cap)).ServeHTTP(httptest.NewRecorder(), r)

		if cap.state.PresentedToken != "presented" {
			t.Errorf("PresentedToken: expected %q, got %q", "presented", cap.state.PresentedToken)
		}
		if cap.state.CSRFCookie != "signed-cookie" {
			t.Errorf("CSRFCookie: expected %q, got %q", "signed-cookie", cap.state.CSRFCookie)
		}
	})

	t.Run("unprefixed session cookie is ignored when secure", func(t *testing.T) {
		th := newTestHandler()
		th.sessions.Sessions[sessionID] = store.Session{ID: sessionID, User: user}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "session", Value: cookie})
		cap := &stateCapture{}
		th.LoadSession(capturingHandler(cap)).ServeHTTP(httptest.NewRecorder(), r)
		if cap.state.Session != nil {
			t.Error("a cookie without the __Host- prefix must not resolve")
		}
	})
}

// --- StateFromContext ---

func TestStateFromContext(t *testing.T) {
	t.Run("defaults to anonymous", func(t *testing.T) {
		st := StateFromContext(t.Context())
		if st.Session != nil || st.Binding != csrf.AnonymousContext {
			t.Errorf("expected anonymous default, got %+v", st)
		}
	})

	t.Run("setSession moves binding with the session", func(t *testing.T) {
		st := &RequestState{}
		st.setSession(&store.Session{ID: "abc"})
		if st.SessionID != "abc" || st.Binding != "abc" {
			t.Errorf("expected binding abc, got %+v", st)
		}
		st.setSession(nil)
		if st.SessionID != "" || st.Binding != csrf.AnonymousContext {
			t.Errorf("expected anonymous after reset, got %+v", st)
		}
	})
}
