package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Session is the server-side state of one authenticated staff session. The
// JWT handed to the client only names the session; everything here stays in
// the store so logout and CSRF rotation take effect immediately.
type Session struct {
	ID        string
	ActorID   uuid.UUID
	Username  string
	Roles     []string
	CSRFToken string
}

// SessionStore persists sessions with a TTL.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// RotateCSRF replaces the session's CSRF token and returns the new one.
	RotateCSRF(ctx context.Context, id string) (string, error)
}

// NewSessionID returns a random 128-bit session identifier.
func NewSessionID() (string, error) {
	return randomToken()
}

// NewCSRFToken returns a random one-time anti-forgery token.
func NewCSRFToken() (string, error) {
	return randomToken()
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RedisSessionStore keeps sessions in redis hashes under "session:<id>" so
// multiple server instances share one session space.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

func (s *RedisSessionStore) Create(ctx context.Context, sess *Session) error {
	key := sessionKey(sess.ID)
	fields := map[string]interface{}{
		"actor_id": sess.ActorID.String(),
		"username": sess.Username,
		"roles":    strings.Join(sess.Roles, ","),
		"csrf":     sess.CSRFToken,
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session ttl: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("session not found")
	}

	actorID, err := uuid.Parse(fields["actor_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session actor id: %w", err)
	}

	var roles []string
	if fields["roles"] != "" {
		roles = strings.Split(fields["roles"], ",")
	}

	// Sliding expiry: touching a session keeps it alive.
	_ = s.client.Expire(ctx, sessionKey(id), s.ttl).Err()

	return &Session{
		ID:        id,
		ActorID:   actorID,
		Username:  fields["username"],
		Roles:     roles,
		CSRFToken: fields["csrf"],
	}, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) RotateCSRF(ctx context.Context, id string) (string, error) {
	token, err := NewCSRFToken()
	if err != nil {
		return "", err
	}

	key := sessionKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("rotate csrf: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("session not found")
	}

	if err := s.client.HSet(ctx, key, "csrf", token).Err(); err != nil {
		return "", fmt.Errorf("rotate csrf: %w", err)
	}
	return token, nil
}
