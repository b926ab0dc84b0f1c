package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/storefront-auth/internal/auth"
	"github.com/MGallo-Code/storefront-auth/internal/config"
	"github.com/MGallo-Code/storefront-auth/internal/csrf"
	"github.com/MGallo-Code/storefront-auth/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// sessionBackend holds sessions and synchronized CSRF tokens side by side,
// so deleting a session also drops its token.
type sessionBackend interface {
	auth.SessionStore
	csrf.TokenRepository
}

// openUserStore connects the configured credential store.
// The returned func closes it.
func openUserStore(ctx context.Context, cfg *config.Config) (auth.UserStore, func(), error) {
	switch cfg.UserStore {
	case config.UserStoreMongo:
		ms, err := store.NewMongoStore(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up mongo store: %w", err)
		}
		return ms, func() { ms.Close(context.Background()) }, nil
	default:
		ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up postgres store: %w", err)
		}
		migrationsFS, err := fs.Sub(migrationsDir, "migrations")
		if err != nil {
			ps.Close()
			return nil, nil, fmt.Errorf("failed to access embedded migrations: %w", err)
		}
		if err := ps.Migrate(ctx, migrationsFS); err != nil {
			ps.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return ps, ps.Close, nil
	}
}

// openSessionStore sets up the session/token store and the matching rate limiter.
// The returned func closes any shared connection.
func openSessionStore(ctx context.Context, cfg *config.Config) (sessionBackend, auth.RateLimiter, func(), error) {
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		slog.Warn("using in-memory session store; sessions are lost on restart and not shared between instances")
		ms := store.NewMemoryStore(cfg.MemoryStoreSize, cfg.SessionTTL)
		// Limiter entries only need to outlive the longest lockout or window.
		rl := store.NewMemoryRateLimiter(cfg.MemoryStoreSize, max(cfg.RateSigninWindow, cfg.RateSigninLockout))
		return ms, rl, func() {}, nil
	default:
		// Create shared Redis client; all Redis structs share one connection pool.
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to set up redis client: %w", err)
		}
		return store.NewRedisStore(rdb, cfg.SessionTTL), store.NewRedisRateLimiter(rdb), func() { rdb.Close() }, nil
	}
}

// newCSRFStrategy builds the configured token strategy.
func newCSRFStrategy(cfg *config.Config, tokens csrf.TokenRepository) (csrf.Strategy, error) {
	if cfg.CSRFMode == config.CSRFModeDoubleSubmit {
		ds, err := csrf.NewDoubleSubmit(cfg.CSRFSecrets, cfg.CSRFTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to set up double-submit csrf: %w", err)
		}
		return ds, nil
	}
	return csrf.NewSynchronized(tokens), nil
}

// newHandler wires the gate from already-open stores.
func newHandler(cfg *config.Config, users auth.UserStore, sessions sessionBackend, rl auth.RateLimiter) (*auth.AuthHandler, error) {
	strategy, err := newCSRFStrategy(cfg, sessions)
	if err != nil {
		return nil, err
	}
	return &auth.AuthHandler{
		Users: users,
		Sessions: &auth.SessionManager{
			Store:  sessions,
			Cookie: auth.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain},
		},
		CSRF: strategy,
		RL:   rl,
		Policy: auth.PasswordPolicy{
			MinLength:        cfg.PasswordMinLength,
			MaxLength:        cfg.PasswordMaxLength,
			RequireUppercase: cfg.PasswordRequireUpper,
			RequireDigit:     cfg.PasswordRequireDigit,
			RequireSpecial:   cfg.PasswordRequireSpecial,
		},
		SigninPolicy: store.RateLimit{
			MaxAttempts: cfg.RateSigninMax,
			Window:      cfg.RateSigninWindow,
			LockoutTTL:  cfg.RateSigninLockout,
		},
	}, nil
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	users, closeUsers, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	// Close at end of run func
	defer closeUsers()

	sessions, rl, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	h, err := newHandler(cfg, users, sessions, rl)
	if err != nil {
		return err
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("storefront auth listening",
			"addr", ln.Addr().String(),
			"user_store", cfg.UserStore,
			"session_store", cfg.SessionStore,
			"csrf_mode", cfg.CSRFMode,
		)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown ! :)
	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Session-aware routes
	r.Group(func(r chi.Router) {
		r.Use(h.LoadSession)
		r.Get("/csrf-token", h.IssueCSRFToken)
		r.Get("/auth/status", h.Status)

		// State-changing routes
		r.Group(func(r chi.Router) {
			// CSRF reads the binding context stored by LoadSession above
			// DO NOT RUN CSRF BEFORE LoadSession
			r.Use(h.CSRFMiddleware)
			r.Post("/auth/signup", h.Signup)
			r.Post("/auth/signin", h.Signin)
			r.Post("/auth/logout", h.Logout)
		})
	})

	return r
}
