package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStore issues and recognises anonymous shopper session tokens.
// Each token lives under its own key and expires after ttl of inactivity.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

// Issue creates a fresh session token.
func (s *SessionStore) Issue(ctx context.Context) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, sessionKey(token), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		logger.Error("Failed to store session token", err)
		return "", err
	}

	logger.Debug("Session token issued", map[string]interface{}{
		"ttl": s.ttl.String(),
	})
	return token, nil
}

// Touch extends a known token's lifetime and reports whether it exists.
func (s *SessionStore) Touch(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	ok, err := s.client.Expire(ctx, sessionKey(token), s.ttl).Result()
	if err != nil {
		logger.Error("Failed to refresh session token", err)
		return false, err
	}
	return ok, nil
}

// Revoke forgets token, e.g. once its cart has been merged at login.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		logger.Error("Failed to revoke session token", err)
		return err
	}
	return nil
}
