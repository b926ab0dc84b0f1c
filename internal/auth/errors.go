// errors.go -- Error kinds surfaced by the gate and their HTTP mapping.
package auth

import (
	"errors"
	"net/http"
)

// Error kinds. Handlers return or wrap these; writeError maps them to a status.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidCsrfToken      = errors.New("invalid csrf token")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrSessionTeardownFailed = errors.New("session teardown failed")
	ErrRateLimited           = errors.New("too many attempts, try again later")
	ErrUnexpected            = errors.New("internal server error")
)

// validationError carries a client-facing message and matches ErrValidation.
type validationError struct {
	msg string
}

func (e *validationError) Error() string        { return e.msg }
func (e *validationError) Is(target error) bool { return target == ErrValidation }

func invalidInput(msg string) error {
	return &validationError{msg: msg}
}

// writeError answers with the status and message of err's kind.
// Anything that is not a known kind is logged and answered as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		BadRequest(w, r, err.Error())
	case errors.Is(err, ErrInvalidCsrfToken):
		Forbidden(w, r, ErrInvalidCsrfToken.Error())
	case errors.Is(err, ErrInvalidCredentials):
		Unauthorized(w, r, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrDuplicateEmail):
		Conflict(w, r, ErrDuplicateEmail.Error())
	case errors.Is(err, ErrRateLimited):
		TooManyRequests(w, r, ErrRateLimited.Error())
	case errors.Is(err, ErrSessionTeardownFailed):
		logError(r, "session teardown failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, ErrSessionTeardownFailed.Error())
	default:
		InternalServerError(w, r, err)
	}
}
