package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	minSecretLength = 32
	nonceLength     = 16
)

// cookiePayload is what the signed CSRF cookie carries.
// Binding is a hash so the cookie does not expose the session ID.
type cookiePayload struct {
	Binding  string `json:"b"`
	Nonce    string `json:"n"`
	IssuedAt int64  `json:"t"`
}

// DoubleSubmit keeps no server-side state. The expected token is re-derived
// from the signed cookie, so any instance holding the secrets can verify.
type DoubleSubmit struct {
	// secrets[0] signs; every entry verifies, for rotation.
	secrets [][]byte
	ttl     time.Duration
	now     func() time.Time
}

// NewDoubleSubmit validates secrets (at least one, each >= 32 bytes).
// Tokens older than ttl are rejected; ttl <= 0 disables the age check.
func NewDoubleSubmit(secrets []string, ttl time.Duration) (*DoubleSubmit, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("%w: at least one secret is required", ErrSecretTooShort)
	}
	keys := make([][]byte, 0, len(secrets))
	for i, s := range secrets {
		if len(s) < minSecretLength {
			return nil, fmt.Errorf("%w: secret %d has %d bytes, need %d", ErrSecretTooShort, i, len(s), minSecretLength)
		}
		keys = append(keys, []byte(s))
	}
	return &DoubleSubmit{secrets: keys, ttl: ttl, now: time.Now}, nil
}

// Issue derives a token for binding from a fresh nonce and returns it with
// the signed cookie that lets Verify re-derive it.
func (d *DoubleSubmit) Issue(_ context.Context, binding string) (Issued, error) {
	if binding == "" {
		return Issued{}, ErrNoBindingContext
	}
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return Issued{}, fmt.Errorf("generating nonce with rand: %w", err)
	}

	payload, err := json.Marshal(cookiePayload{
		Binding:  hashBinding(binding),
		Nonce:    base64.RawURLEncoding.EncodeToString(nonce),
		IssuedAt: d.now().Unix(),
	})
	if err != nil {
		return Issued{}, fmt.Errorf("marshaling csrf cookie: %w", err)
	}

	return Issued{
		Token:  DeriveToken(d.secrets[0], binding, nonce),
		Cookie: sign(d.secrets[0], payload),
	}, nil
}

// Verify checks, in order: presence, cookie signature, age, binding, token.
func (d *DoubleSubmit) Verify(_ context.Context, binding, presented, cookie string) error {
	if presented == "" {
		return ErrTokenMissing
	}
	if cookie == "" {
		return ErrCookieMissing
	}

	raw, secret, err := d.unsign(cookie)
	if err != nil {
		return err
	}
	var p cookiePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ErrMalformedCookie
	}
	nonce, err := base64.RawURLEncoding.DecodeString(p.Nonce)
	if err != nil || len(nonce) != nonceLength {
		return ErrMalformedCookie
	}

	if d.ttl > 0 && d.now().Sub(time.Unix(p.IssuedAt, 0)) > d.ttl {
		return ErrTokenExpired
	}
	if !tokensEqual(p.Binding, hashBinding(binding)) {
		return ErrBindingMismatch
	}
	if !tokensEqual(presented, DeriveToken(secret, binding, nonce)) {
		return ErrTokenMismatch
	}
	return nil
}

// Revoke is a no-op: there is nothing server-side. Callers clear the cookie.
func (d *DoubleSubmit) Revoke(context.Context, string) error { return nil }

// RequiresSession is false: anonymous clients get cookie-bound tokens.
func (d *DoubleSubmit) RequiresSession() bool { return false }

// unsign returns the payload and the secret whose signature matched.
func (d *DoubleSubmit) unsign(cookie string) ([]byte, []byte, error) {
	encoded, sig, ok := strings.Cut(cookie, ".")
	if !ok {
		return nil, nil, ErrMalformedCookie
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, ErrMalformedCookie
	}
	for _, secret := range d.secrets {
		if hmac.Equal([]byte(sig), []byte(signature(secret, payload))) {
			return payload, secret, nil
		}
	}
	return nil, nil, ErrBadSignature
}

func sign(secret, payload []byte) string {
	return base64.RawURLEncoding.EncodeToString(payload) + "." + signature(secret, payload)
}

func signature(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("csrf-cookie\x00"))
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func hashBinding(binding string) string {
	sum := sha256.Sum256([]byte(binding))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
