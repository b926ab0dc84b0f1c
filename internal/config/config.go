// config.go

// Environment variable loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend and mode names accepted in the environment.
const (
	UserStorePostgres = "postgres"
	UserStoreMongo    = "mongo"

	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"

	CSRFModeSynchronized = "synchronized"
	CSRFModeDoubleSubmit = "double-submit"
)

// minCSRFSecretLength matches the HMAC key floor enforced by csrf.NewDoubleSubmit.
const minCSRFSecretLength = 32

// Config holds all env configuration vars for the auth service.
type Config struct {
	Port     string     `env:"PORT" envDefault:"3003"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// User credential store: postgres (DATABASE_URL) or mongo (MONGODB_URL).
	UserStore     string `env:"USER_STORE" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURL      string `env:"MONGODB_URL"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"storefront"`

	// Session + synchronized token store: redis (REDIS_URL) or in-process memory.
	SessionStore    string        `env:"SESSION_STORE" envDefault:"redis"`
	RedisURL        string        `env:"REDIS_URL"`
	MemoryStoreSize int           `env:"MEMORY_STORE_SIZE" envDefault:"10000"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"60m"`

	// CSRF strategy. Double-submit needs CSRF_SECRETS; the first secret signs,
	// all of them verify, so a new secret can be prepended without logging anyone out.
	CSRFMode     string        `env:"CSRF_MODE" envDefault:"synchronized"`
	CSRFSecrets  []string      `env:"CSRF_SECRETS" envSeparator:","`
	CSRFTokenTTL time.Duration `env:"CSRF_TOKEN_TTL" envDefault:"60m"`

	// Secure cookies are __Host- prefixed; disable only for plain-HTTP development.
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// Signup password policy. Lengths count characters; 0 leaves a bound off.
	PasswordMinLength      int  `env:"PASSWORD_MIN_LENGTH" envDefault:"0"`
	PasswordMaxLength      int  `env:"PASSWORD_MAX_LENGTH" envDefault:"0"`
	PasswordRequireUpper   bool `env:"PASSWORD_REQUIRE_UPPER"`
	PasswordRequireDigit   bool `env:"PASSWORD_REQUIRE_DIGIT"`
	PasswordRequireSpecial bool `env:"PASSWORD_REQUIRE_SPECIAL"`

	// Rate limit policy for signin attempts per email. RATE_SIGNIN_MAX=0 disables it.
	RateSigninMax     int           `env:"RATE_SIGNIN_MAX" envDefault:"10"`
	RateSigninWindow  time.Duration `env:"RATE_SIGNIN_WINDOW" envDefault:"10m"`
	RateSigninLockout time.Duration `env:"RATE_SIGNIN_LOCKOUT" envDefault:"15m"`
}

// LoadConfig loads .env (if present), reads environment variables and returns a validated Config.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.UserStore {
	case UserStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when USER_STORE=%s", UserStorePostgres)
		}
	case UserStoreMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGODB_URL is required when USER_STORE=%s", UserStoreMongo)
		}
	default:
		return fmt.Errorf("USER_STORE must be %q or %q, got %q", UserStorePostgres, UserStoreMongo, c.UserStore)
	}

	switch c.SessionStore {
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=%s", SessionStoreRedis)
		}
	case SessionStoreMemory:
		if c.MemoryStoreSize <= 0 {
			return fmt.Errorf("MEMORY_STORE_SIZE must be positive, got %d", c.MemoryStoreSize)
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreRedis, SessionStoreMemory, c.SessionStore)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	switch c.CSRFMode {
	case CSRFModeSynchronized:
	case CSRFModeDoubleSubmit:
		if len(c.CSRFSecrets) == 0 {
			return fmt.Errorf("CSRF_SECRETS is required when CSRF_MODE=%s", CSRFModeDoubleSubmit)
		}
		for i, s := range c.CSRFSecrets {
			if len(s) < minCSRFSecretLength {
				return fmt.Errorf("CSRF_SECRETS entry %d must be at least %d characters", i, minCSRFSecretLength)
			}
		}
	default:
		return fmt.Errorf("CSRF_MODE must be %q or %q, got %q", CSRFModeSynchronized, CSRFModeDoubleSubmit, c.CSRFMode)
	}
	if c.CSRFTokenTTL < 0 {
		return fmt.Errorf("CSRF_TOKEN_TTL must not be negative, got %s", c.CSRFTokenTTL)
	}

	if c.PasswordMinLength < 0 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must not be negative, got %d", c.PasswordMinLength)
	}
	if c.PasswordMaxLength < 0 {
		return fmt.Errorf("PASSWORD_MAX_LENGTH must not be negative, got %d", c.PasswordMaxLength)
	}
	if c.PasswordMaxLength > 0 && c.PasswordMaxLength < c.PasswordMinLength {
		return fmt.Errorf("PASSWORD_MAX_LENGTH (%d) must not be below PASSWORD_MIN_LENGTH (%d)", c.PasswordMaxLength, c.PasswordMinLength)
	}

	// All three fields required once enabled, so a half-configured env can't silently disable limiting.
	if c.RateSigninMax < 0 {
		return fmt.Errorf("RATE_SIGNIN_MAX must not be negative, got %d", c.RateSigninMax)
	}
	if c.RateSigninMax > 0 && (c.RateSigninWindow <= 0 || c.RateSigninLockout <= 0) {
		return fmt.Errorf("RATE_SIGNIN_WINDOW and RATE_SIGNIN_LOCKOUT must be positive when RATE_SIGNIN_MAX > 0")
	}

	return nil
}
