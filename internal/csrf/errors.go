package csrf

import "errors"

// Rejection reasons returned by Verify. All of them mean "reject with 403";
// they are distinct so the gate can log and count why.
var (
	ErrTokenMissing     = errors.New("csrf token missing")
	ErrTokenNotFound    = errors.New("no csrf token issued for context")
	ErrTokenMismatch    = errors.New("csrf token mismatch")
	ErrCookieMissing    = errors.New("csrf cookie missing")
	ErrMalformedCookie  = errors.New("malformed csrf cookie")
	ErrBadSignature     = errors.New("csrf cookie signature invalid")
	ErrTokenExpired     = errors.New("csrf token expired")
	ErrBindingMismatch  = errors.New("csrf token bound to another context")
	ErrNoBindingContext = errors.New("no binding context")
)

// ErrSecretTooShort is returned by NewDoubleSubmit for secrets under minSecretLength.
var ErrSecretTooShort = errors.New("csrf secret too short")

var rejections = []error{
	ErrTokenMissing,
	ErrTokenNotFound,
	ErrTokenMismatch,
	ErrCookieMissing,
	ErrMalformedCookie,
	ErrBadSignature,
	ErrTokenExpired,
	ErrBindingMismatch,
	ErrNoBindingContext,
}

// IsRejection reports whether err is a verification failure rather than
// an infrastructure error (store unreachable, rand failure).
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// Reason returns a short, stable label for a rejection, for logs and metrics.
// Infrastructure errors map to "error".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "token_missing"
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrTokenMismatch):
		return "token_mismatch"
	case errors.Is(err, ErrCookieMissing):
		return "cookie_missing"
	case errors.Is(err, ErrMalformedCookie):
		return "cookie_malformed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrBindingMismatch):
		return "binding_mismatch"
	case errors.Is(err, ErrNoBindingContext):
		return "no_binding_context"
	default:
		return "error"
	}
}
