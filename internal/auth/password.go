// password.go

// Credential hashing and the signup password policy.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// maxPasswordBytes bounds the input handed to Argon2id. Signup rejects longer
// passwords; signin answers 401 without hashing.
const maxPasswordBytes = 128

var errMalformedHash = errors.New("malformed password hash")

// argonParams are the cost settings recorded in every stored hash.
type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

// hashParams is what new hashes are created with. Stored hashes carry their
// own params, so raising these does not lock anyone out.
var hashParams = argonParams{memory: 64 * 1024, time: 3, threads: 2}

const (
	saltBytes = 16
	keyBytes  = 32
)

// HashPassword hashes a signup password into a PHC string:
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := hashParams.derive(password, salt, keyBytes)
	return hashParams.encode(salt, key), nil
}

// VerifyPassword reports whether password matches a stored PHC hash.
// A malformed hash is an error, not a mismatch.
func VerifyPassword(password, encodedHash string) (bool, error) {
	params, salt, want, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	got := params.derive(password, salt, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func (p argonParams) derive(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, keyLen)
}

func (p argonParams) encode(salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

// decodeHash splits a PHC string into its params, salt and derived key.
func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, nil, nil, errMalformedHash
	}
	if fields[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unsupported algorithm %q", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: version: %v", errMalformedHash, err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: params: %v", errMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: key: %v", errMalformedHash, err)
	}
	return p, salt, key, nil
}

// PasswordPolicy is checked at signup. Lengths count runes; zero disables a
// bound. The zero policy still refuses empty passwords, control characters and
// anything over maxPasswordBytes.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// specialChars is printable ASCII punctuation.
const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Validate returns one message per broken rule, in a stable order. The
// messages go to the client verbatim, joined by "; ".
func (p PasswordPolicy) Validate(password string) []string {
	if password == "" {
		return []string{"No password provided"}
	}

	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsControl(r):
			return []string{"Password contains invalid characters"}
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}

	var failures []string
	n := utf8.RuneCountInString(password)
	if p.MinLength > 0 && n < p.MinLength {
		failures = append(failures, fmt.Sprintf("Password must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		failures = append(failures, fmt.Sprintf("Password must be at most %d characters", p.MaxLength))
	}
	if len(password) > maxPasswordBytes {
		failures = append(failures, fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}

	classes := []struct {
		required, seen bool
		msg            string
	}{
		{p.RequireUppercase, upper, "Password must contain at least one uppercase letter"},
		{p.RequireDigit, digit, "Password must contain at least one digit"},
		{p.RequireSpecial, special, "Password must contain at least one special character"},
	}
	for _, c := range classes {
		if c.required && !c.seen {
			failures = append(failures, c.msg)
		}
	}
	return failures
}
