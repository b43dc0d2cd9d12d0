package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace = "staffimport"
	defaultLockTTL   = 10 * time.Minute
)

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithNamespace sets the key prefix.
func WithNamespace(ns string) RedisOption {
	return func(b *RedisBackend) {
		if ns != "" {
			b.namespace = ns
		}
	}
}

// WithTTL sets how long a session lives after its last save.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithLockTTL bounds how long a commit lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) {
		if ttl > 0 {
			b.lockTTL = ttl
		}
	}
}

// RedisBackend stores sessions as JSON values with a TTL. Commit locks are
// SET NX keys owned by a random token.
type RedisBackend struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
	lockTTL   time.Duration
}

var _ core.SessionBackend = (*RedisBackend)(nil)

// NewRedisBackend returns a backend using client.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{
		client:    client,
		namespace: defaultNamespace,
		ttl:       core.DefaultSessionTTL,
		lockTTL:   defaultLockTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBackend) sessionKey(id string) string {
	return b.namespace + ":import:" + id
}

func (b *RedisBackend) lockKey(id string) string {
	return b.namespace + ":import:" + id + ":lock"
}

// Load returns the session with the given id.
func (b *RedisBackend) Load(ctx context.Context, id string) (*core.ImportSession, error) {
	data, err := b.client.Get(ctx, b.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s core.ImportSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// Save stores s and resets its TTL.
func (b *RedisBackend) Save(ctx context.Context, s *core.ImportSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := b.client.Set(ctx, b.sessionKey(s.ID), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// unlockScript deletes the lock only while it is still held by the token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes the commit lock of a session.
func (b *RedisBackend) Lock(ctx context.Context, id string) (func(), error) {
	token := uuid.NewString()
	ok, err := b.client.SetNX(ctx, b.lockKey(id), token, b.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if !ok {
		return nil, core.ErrSessionBusy
	}

	key := b.lockKey(id)
	return func() {
		// The caller's context may already be done once the commit returns.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, b.client, []string{key}, token).Err()
	}, nil
}
