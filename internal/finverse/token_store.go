package finverse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore persists the current credential between webhook calls.
// Load returns nil, nil when nothing is cached.
type TokenStore interface {
	Load(ctx context.Context) (*Credential, error)
	Store(ctx context.Context, cred *Credential) error
}

// MemoryTokenStore keeps the credential in process. Replacement is a single
// pointer swap, so readers never observe a partial credential.
type MemoryTokenStore struct {
	current atomic.Pointer[Credential]
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(_ context.Context) (*Credential, error) {
	return s.current.Load(), nil
}

func (s *MemoryTokenStore) Store(_ context.Context, cred *Credential) error {
	s.current.Store(cred)
	return nil
}

// RedisTokenStore shares the credential across replicas.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore keys the credential by client id so several Finverse
// customer apps can share one Redis.
func NewRedisTokenStore(client *redis.Client, prefix, clientID string) *RedisTokenStore {
	if prefix == "" {
		prefix = "finverse:token"
	}
	return &RedisTokenStore{
		client: client,
		key:    fmt.Sprintf("%s:%s", prefix, clientID),
	}
}

// Key is the Redis key holding the credential.
func (s *RedisTokenStore) Key() string {
	return s.key
}

func (s *RedisTokenStore) Load(ctx context.Context) (*Credential, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("decode cached credential: %w", err)
	}
	return &cred, nil
}

func (s *RedisTokenStore) Store(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return s.client.Del(ctx, s.key).Err()
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	// No expiry known: keep it briefly and let the cache re-check validity.
	ttl := time.Minute
	if !cred.ExpiresAt.IsZero() {
		ttl = time.Until(cred.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}

	return s.client.Set(ctx, s.key, raw, ttl).Err()
}

// Ping reports whether Redis is reachable.
func (s *RedisTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
