package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
)

// --- SaveSession + GetSession ---

func TestRedisStore_SaveAndGetSession(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trip stores and retrieves an authenticated session", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)

		userID := uuid.Must(uuid.NewV7())
		sess := &Session{
			ID:        "sess_roundtrip",
			User:      &SessionUser{ID: userID, Email: "a@x.com"},
			CreatedAt: time.Now().Truncate(time.Second),
		}
		if err := rs.SaveSession(ctx, sess); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
		if d := time.Until(sess.ExpiresAt) - time.Hour; d > 5*time.Second || d < -5*time.Second {
			t.Errorf("ExpiresAt: expected ~1h from now, got %v", sess.ExpiresAt)
		}

		got, err := rs.GetSession(ctx, "sess_roundtrip")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.User == nil {
			t.Fatal("expected user to be set")
		}
		if got.User.ID != userID || got.User.Email != "a@x.com" {
			t.Errorf("user: expected %s/a@x.com, got %s/%s", userID, got.User.ID, got.User.Email)
		}
		if !got.Authenticated() {
			t.Error("session should be authenticated")
		}
	})

	t.Run("anonymous session has no user", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)

		if err := rs.SaveSession(ctx, &Session{ID: "sess_anon", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}

		got, err := rs.GetSession(ctx, "sess_anon")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.Authenticated() {
			t.Error("anonymous session should not be authenticated")
		}
	})

	t.Run("missing session returns ErrNotFound", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)

		got, err := rs.GetSession(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil session, got %+v", got)
		}
	})

	t.Run("session expires after ttl", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Minute)

		if err := rs.SaveSession(ctx, &Session{ID: "sess_exp", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
		mr.FastForward(2 * time.Minute)

		if _, err := rs.GetSession(ctx, "sess_exp"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after ttl, got %v", err)
		}
	})
}

// --- TouchSession ---

func TestRedisStore_TouchSession(t *testing.T) {
	ctx := context.Background()

	t.Run("slides session and token expiry together", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, 10*time.Minute)

		if err := rs.SaveSession(ctx, &Session{ID: "sess_touch", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
		if err := rs.SetCSRFToken(ctx, CSRFRecord{Token: "tok", Context: "sess_touch", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SetCSRFToken: %v", err)
		}

		// 8 of 10 minutes pass, touch, 8 more pass: both keys must survive.
		mr.FastForward(8 * time.Minute)
		if err := rs.TouchSession(ctx, "sess_touch"); err != nil {
			t.Fatalf("TouchSession: %v", err)
		}
		mr.FastForward(8 * time.Minute)

		if _, err := rs.GetSession(ctx, "sess_touch"); err != nil {
			t.Errorf("session should survive: %v", err)
		}
		if _, err := rs.GetCSRFToken(ctx, "sess_touch"); err != nil {
			t.Errorf("token should survive: %v", err)
		}
	})

	t.Run("touching a missing session returns ErrNotFound", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Minute)

		if err := rs.TouchSession(ctx, "gone"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

// --- DeleteSession ---

func TestRedisStore_DeleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("removes session and its csrf token", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)

		if err := rs.SaveSession(ctx, &Session{ID: "sess_del", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
		if err := rs.SetCSRFToken(ctx, CSRFRecord{Token: "tok", Context: "sess_del"}); err != nil {
			t.Fatalf("SetCSRFToken: %v", err)
		}

		if err := rs.DeleteSession(ctx, "sess_del"); err != nil {
			t.Fatalf("DeleteSession: %v", err)
		}

		if _, err := rs.GetSession(ctx, "sess_del"); !errors.Is(err, ErrNotFound) {
			t.Errorf("session: expected ErrNotFound, got %v", err)
		}
		if _, err := rs.GetCSRFToken(ctx, "sess_del"); !errors.Is(err, ErrNotFound) {
			t.Errorf("token: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("deleting a missing session is not an error", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)

		if err := rs.DeleteSession(ctx, "never_existed"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("redis failure surfaces as error", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)
		if err := rs.SaveSession(ctx, &Session{ID: "sess_fail", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}

		// go-redis does not retry plain ERR replies; the deadline bounds the call regardless.
		failCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		mr.SetError("ERR simulated failure")
		if err := rs.DeleteSession(failCtx, "sess_fail"); err == nil {
			t.Fatal("expected error from failing redis")
		}

		mr.SetError("")
		if _, err := rs.GetSession(ctx, "sess_fail"); err != nil {
			t.Errorf("failed delete must leave the session in place: %v", err)
		}
	})
}

// --- CSRF tokens ---

func TestRedisStore_CSRFTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("set overwrites the previous token for the same context", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)

		for _, tok := range []string{"first", "second"} {
			if err := rs.SetCSRFToken(ctx, CSRFRecord{Token: tok, Context: "ctx_a"}); err != nil {
				t.Fatalf("SetCSRFToken(%s): %v", tok, err)
			}
		}

		rec, err := rs.GetCSRFToken(ctx, "ctx_a")
		if err != nil {
			t.Fatalf("GetCSRFToken: %v", err)
		}
		if rec.Token != "second" {
			t.Errorf("expected latest token %q, got %q", "second", rec.Token)
		}
	})

	t.Run("contexts are isolated", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		rs := NewRedisStore(rdb, time.Hour)

		if err := rs.SetCSRFToken(ctx, CSRFRecord{Token: "a", Context: "ctx_a"}); err != nil {
			t.Fatalf("SetCSRFToken: %v", err)
		}
		if err := rs.SetCSRFToken(ctx, CSRFRecord{Token: "b", Context: "ctx_b"}); err != nil {
			t.Fatalf("SetCSRFToken: %v", err)
		}
		if err := rs.DeleteCSRFToken(ctx, "ctx_a"); err != nil {
			t.Fatalf("DeleteCSRFToken: %v", err)
		}

		if _, err := rs.GetCSRFToken(ctx, "ctx_a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("ctx_a: expected ErrNotFound, got %v", err)
		}
		rec, err := rs.GetCSRFToken(ctx, "ctx_b")
		if err != nil {
			t.Fatalf("GetCSRFToken(ctx_b): %v", err)
		}
		if rec.Token != "b" {
			t.Errorf("ctx_b: expected %q, got %q", "b", rec.Token)
		}
	})
}
