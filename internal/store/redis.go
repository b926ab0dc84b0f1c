// redis.go -- go-redis backed session and synchronized CSRF token store.
//
// Keys:
//
//	session:<id>  JSON Session, TTL = sliding session window
//	csrf:<id>     JSON CSRFRecord, TTL kept in lockstep with its session
//
// Every write is acknowledged before the call returns, so a token issued in one
// response is visible to the next request (no replica reads are used).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL, pings, and returns a shared client.
// All Redis structs (session store, rate limiter) share this one pool.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps sessions and their synchronized CSRF tokens.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps rdb; ttl is the idle window applied on save and touch.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }
func csrfKey(id string) string    { return "csrf:" + id }

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SaveSession writes sess with a fresh TTL and sets sess.ExpiresAt accordingly.
func (s *RedisStore) SaveSession(ctx context.Context, sess *Session) error {
	sess.ExpiresAt = time.Now().Add(s.ttl)
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession returns the session for id, or ErrNotFound if missing or expired.
// ExpiresAt reflects the key's remaining TTL, not the value written at save time.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*Session, error) {
	pipe := s.rdb.Pipeline()
	getCmd := pipe.Get(ctx, sessionKey(id))
	ttlCmd := pipe.PTTL(ctx, sessionKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	raw, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		sess.ExpiresAt = time.Now().Add(ttl)
	}
	return &sess, nil
}

// TouchSession slides the expiry of the session and its CSRF token.
// Returns ErrNotFound if the session expired between lookup and touch.
func (s *RedisStore) TouchSession(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	sessExp := pipe.Expire(ctx, sessionKey(id), s.ttl)
	pipe.Expire(ctx, csrfKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if !sessExp.Val() {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes the session and its CSRF token in one transaction.
// Deleting a missing session is not an error.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, csrfKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// SetCSRFToken stores rec under its binding context, replacing any previous token.
func (s *RedisStore) SetCSRFToken(ctx context.Context, rec CSRFRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling csrf record: %w", err)
	}
	if err := s.rdb.Set(ctx, csrfKey(rec.Context), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving csrf token: %w", err)
	}
	return nil
}

// GetCSRFToken returns the live token for binding, or ErrNotFound.
func (s *RedisStore) GetCSRFToken(ctx context.Context, binding string) (*CSRFRecord, error) {
	raw, err := s.rdb.Get(ctx, csrfKey(binding)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching csrf token: %w", err)
	}
	var rec CSRFRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parsing csrf record: %w", err)
	}
	return &rec, nil
}

// DeleteCSRFToken drops the token for binding.
func (s *RedisStore) DeleteCSRFToken(ctx context.Context, binding string) error {
	if err := s.rdb.Del(ctx, csrfKey(binding)).Err(); err != nil {
		return fmt.Errorf("deleting csrf token: %w", err)
	}
	return nil
}
