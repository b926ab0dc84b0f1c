// Package csrf issues and verifies CSRF tokens.
//
// Two strategies share one interface:
//
//	Synchronized  random token stored server-side per session (TokenRepository)
//	DoubleSubmit  HMAC-derived token checked against a signed HTTP-only cookie
//
// Both are bound to a context: the session ID, or AnonymousContext before a
// session exists. A token is only ever valid for the context it was issued to.
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// AnonymousContext is the binding context of a client without a live session.
const AnonymousContext = "anonymous"

// tokenLabel domain-separates derived tokens from other HMACs made with the same secret.
const tokenLabel = "csrf-token\x00"

// Issued is the result of issuing a token.
// Cookie is the signed cookie value to set, empty for strategies without one.
type Issued struct {
	Token  string
	Cookie string
}

// Strategy is one way of binding CSRF tokens to a client.
type Strategy interface {
	// Issue creates a token for binding. Any earlier token for the same
	// binding stops verifying (synchronized) or is superseded by the new cookie.
	Issue(ctx context.Context, binding string) (Issued, error)
	// Verify returns nil only if presented is the live token for binding.
	// cookie is the raw CSRF cookie value, "" if the request carried none.
	Verify(ctx context.Context, binding, presented, cookie string) error
	// Revoke forgets any server-side token for binding.
	Revoke(ctx context.Context, binding string) error
	// RequiresSession reports whether Issue needs a real session ID as binding.
	RequiresSession() bool
}

// GenerateToken returns 256 bits from crypto/rand, base64url without padding.
func GenerateToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating token with rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// DeriveToken computes HMAC-SHA256(secret, label || binding || 0x00 || nonce).
// Same inputs always give the same token, so the server can re-derive it.
func DeriveToken(secret []byte, binding string, nonce []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tokenLabel))
	mac.Write([]byte(binding))
	mac.Write([]byte{0})
	mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// tokensEqual compares in constant time.
func tokensEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
