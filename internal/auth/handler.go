// handler.go -- HTTP handlers for all /auth/* endpoints.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/MGallo-Code/storefront-auth/internal/csrf"
	"github.com/MGallo-Code/storefront-auth/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
)

// UserStore defines credential storage needed by auth handlers.
// Satisfied by *store.PostgresStore and *store.MongoStore.
type UserStore interface {
	// CreateUser inserts u; store.ErrDuplicateEmail if the email is taken.
	CreateUser(ctx context.Context, u *store.User) error

	// GetUserByEmail fetches a user for signin; store.ErrNotFound if absent.
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)

	// CheckHealth reports whether the backing database is reachable.
	CheckHealth(ctx context.Context) error
}

// RateLimiter checks and records rate limit state for a given key and policy.
// Satisfied by *store.RedisRateLimiter and *store.MemoryRateLimiter.
type RateLimiter interface {
	// Allow checks whether the action is within policy, records the attempt.
	// Returns nil if allowed; store.ErrRateLimitExceeded if locked out.
	Allow(ctx context.Context, key string, policy store.RateLimit) error
}

// dummyPasswordHash is a precomputed Argon2id hash for timing attack mitigation.
// When a user doesn't exist, verify against this so both paths take equal time (~100ms).
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$YWJjZGVmZ2hpamtsbW5vcA$kC6C6jqLzC0JLlJgXhHbKMhLLpVvLJLLQw/IqT9ZYPU"

// DefaultSigninPolicy is the rate limit applied per email address on signin attempts.
// Applied before any DB work -- rejected requests never reach Argon2id.
var DefaultSigninPolicy = store.RateLimit{
	MaxAttempts: 10,
	Window:      10 * time.Minute,
	LockoutTTL:  15 * time.Minute,
}

// AuthHandler holds dependencies for all /auth/* HTTP handlers and middleware.
type AuthHandler struct {
	Users    UserStore
	Sessions *SessionManager
	CSRF     csrf.Strategy
	RL       RateLimiter
	// Policy applies to signup passwords only; signin never re-validates.
	Policy       PasswordPolicy
	SigninPolicy store.RateLimit
}

var validate = newValidator()

// newValidator reports field names as their json tags.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage turns the first validator failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "invalid email format"
	case "max":
		return fe.Field() + " is too long"
	default:
		return "invalid " + fe.Field()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type userResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email"`
}

type authResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// Signup handles POST /auth/signup: name + email + password registration.
// Returns 201 with the created identity, 400 for validation errors, 409 for a
// taken email, 500 for server errors. The new account is signed in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name" validate:"required,max=100"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode signup input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)

	if err := validate.Struct(input); err != nil {
		writeError(w, r, invalidInput(validationMessage(err)))
		return
	}
	if failures := h.Policy.Validate(input.Password); len(failures) > 0 {
		writeError(w, r, invalidInput(strings.Join(failures, "; ")))
		return
	}

	hashedPassword, err := HashPassword(input.Password)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	userID, err := uuid.NewV7()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	user := &store.User{
		ID:           userID,
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hashedPassword,
	}
	if err := h.Users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			logInfo(r, "signup attempted with existing email")
			writeError(w, r, ErrDuplicateEmail)
			return
		}
		logError(r, "failed to create user", "error", err)
		InternalServerError(w, r, err)
		return
	}

	st := StateFromContext(r.Context())
	sess, err := h.Sessions.Authenticate(r.Context(), w, st.Session, store.SessionUser{ID: user.ID, Email: user.Email})
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	st.setSession(sess)

	logInfo(r, "user signed up", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{
		Message: "user created",
		User:    userResponse{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// Signin handles POST /auth/signin: email + password authentication.
// Returns 200 with {id, email}, 400 for missing fields, 401 for bad credentials,
// 429 when the email is locked out, 500 for server errors.
// Argon2id dummy-hash equalises timing when account doesn't exist.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email" validate:"required,max=254"`
		Password string `json:"password" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode signin input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}
	input.Email = normalizeEmail(input.Email)

	if err := validate.Struct(input); err != nil {
		writeError(w, r, invalidInput(validationMessage(err)))
		return
	}
	// Oversized passwords can never match a stored hash; skip Argon2id on them.
	if len(input.Password) > maxPasswordBytes {
		signinAttempts.WithLabelValues("invalid_credentials").Inc()
		writeError(w, r, ErrInvalidCredentials)
		return
	}

	if err := h.RL.Allow(r.Context(), "signin:email:"+input.Email, h.SigninPolicy); err != nil {
		if errors.Is(err, store.ErrRateLimitExceeded) {
			logInfo(r, "signin rate limited")
			signinAttempts.WithLabelValues("rate_limited").Inc()
			writeError(w, r, ErrRateLimited)
			return
		}
		InternalServerError(w, r, err)
		return
	}

	user, err := h.Users.GetUserByEmail(r.Context(), input.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logError(r, "failed to fetch user for signin", "error", err)
			InternalServerError(w, r, err)
			return
		}
		// Run dummy hash to equalise timing with found-user path.
		VerifyPassword(input.Password, dummyPasswordHash)
		logInfo(r, "signin attempted with non-existent email")
		signinAttempts.WithLabelValues("invalid_credentials").Inc()
		writeError(w, r, ErrInvalidCredentials)
		return
	}

	// Verified before the session is touched; nothing below runs on a mismatch.
	valid, err := VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		logError(r, "password verification failed", "error", err)
		InternalServerError(w, r, err)
		return
	}
	if !valid {
		logInfo(r, "signin attempted with incorrect password", "user_id", user.ID)
		signinAttempts.WithLabelValues("invalid_credentials").Inc()
		writeError(w, r, ErrInvalidCredentials)
		return
	}

	st := StateFromContext(r.Context())
	sess, err := h.Sessions.Authenticate(r.Context(), w, st.Session, store.SessionUser{ID: user.ID, Email: user.Email})
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	st.setSession(sess)

	signinAttempts.WithLabelValues("success").Inc()
	logInfo(r, "user signed in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Message: "signed in",
		User:    userResponse{ID: user.ID, Email: user.Email},
	})
}

// Logout handles POST /auth/logout. Ends the caller's session.
// Without a session it still answers 200. If the store cannot delete the
// session the cookies are left alone and the caller gets a 500.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	sess := st.Session

	// Destroy first: a failed delete must leave the session and its token usable.
	if err := h.Sessions.Destroy(r.Context(), w, sess); err != nil {
		writeError(w, r, err)
		return
	}
	if sess != nil {
		// The session delete already dropped a store-held token; this covers
		// strategies whose tokens live elsewhere. The binding is gone either way.
		if err := h.CSRF.Revoke(r.Context(), sess.ID); err != nil {
			logWarn(r, "csrf revoke after logout failed", "error", err)
		}
	}
	h.Sessions.Cookie.clear(w, csrfCookie)

	if sess != nil && sess.User != nil {
		logInfo(r, "user logged out", "user_id", sess.User.ID)
	} else {
		logDebug(r, "logout without authenticated session")
	}
	st.setSession(nil)
	OK(w, "logged out")
}

// Status handles GET /auth/status. Read-only: no session or token changes.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())

	resp := struct {
		LoggedIn bool               `json:"loggedIn"`
		User     *store.SessionUser `json:"user,omitempty"`
	}{}
	if st.Session.Authenticated() {
		resp.LoggedIn = true
		resp.User = st.Session.User
	}
	writeJSON(w, http.StatusOK, resp)
}
