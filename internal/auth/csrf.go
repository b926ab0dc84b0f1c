// csrf.go -- CSRF token issuance and the verification gate.
//
// GET /csrf-token issues a token for the caller's binding context; every
// non-safe request must echo it in X-CSRF-Token. SameSite=Lax handles most
// cases; the token covers the rest.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/storefront-auth/internal/csrf"
)

const csrfCookie = "csrf"

// safeMethods never change state and bypass verification.
var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// IssueCSRFToken handles GET /csrf-token.
// Strategies that store tokens per session get an anonymous session first if
// the caller has none. Any earlier token for the same context stops verifying.
func (h *AuthHandler) IssueCSRFToken(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())

	if h.CSRF.RequiresSession() && st.Session == nil {
		sess, err := h.Sessions.Start(r.Context(), w)
		if err != nil {
			InternalServerError(w, r, err)
			return
		}
		st.setSession(sess)
	}

	issued, err := h.CSRF.Issue(r.Context(), st.Binding)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	if issued.Cookie != "" {
		// Browser-session cookie; the signed payload carries its own issue time.
		h.Sessions.Cookie.set(w, csrfCookie, issued.Cookie, 0)
	}
	csrfTokensIssued.Inc()
	logDebug(r, "csrf token issued", "anonymous", st.Session == nil)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, struct {
		CSRFToken string `json:"csrfToken"`
	}{issued.Token})
}

// CSRFMiddleware enforces CSRF protection on state-changing requests.
// Must run after LoadSession. Reads the token from the X-CSRF-Token header and
// verifies it against the expected value for the current binding context.
// Any failure is 403 invalid csrf token; the handler never runs.
func (h *AuthHandler) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}

		st := StateFromContext(r.Context())
		err := h.CSRF.Verify(r.Context(), st.Binding, st.PresentedToken, st.CSRFCookie)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		if !csrf.IsRejection(err) {
			InternalServerError(w, r, err)
			return
		}
		reason := csrf.Reason(err)
		csrfRejections.WithLabelValues(reason).Inc()
		logWarn(r, "csrf validation failed", "reason", reason, "url", r.URL.String(), "anonymous", st.Session == nil)
		writeError(w, r, errors.Join(ErrInvalidCsrfToken, err))
	})
}
