package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/utils"
)

// SessionStore issues bearer tokens for the teacher dashboard and maps them
// back to the Matrix id that logged in. Tokens live in Redis so sessions
// survive restarts and are shared across instances.
type SessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSessionStore(redisClient *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionStore{redis: redisClient, ttl: ttl}
}

// Create mints a new session token for the given Matrix id.
func (s *SessionStore) Create(ctx context.Context, matrixID string) (string, error) {
	token, err := utils.GenerateCode(32)
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(token), matrixID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Lookup resolves a token to its Matrix id and slides the expiry window.
func (s *SessionStore) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", status.ErrSessionNotFound
	}

	matrixID, err := s.redis.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", status.ErrSessionNotFound
		}
		return "", fmt.Errorf("load session: %w", err)
	}

	s.redis.Expire(ctx, sessionKey(token), s.ttl)
	return matrixID, nil
}

// Destroy invalidates a token, ending its session.
func (s *SessionStore) Destroy(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func sessionKey(token string) string {
	return fmt.Sprintf("dashboard:session:%s", token)
}
