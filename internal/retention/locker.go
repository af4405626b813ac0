package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes sweep runs across process instances.
type Locker interface {
	// Acquire attempts to take the lease. ok is false when another holder
	// has it. The returned token must be presented to Release.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// RedisLocker implements the lease with SET NX EX. Release is token-checked
// so a sweep that outlived its TTL cannot delete a successor's lease.
type RedisLocker struct {
	client redis.Cmdable
}

func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client}
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire sweep lease: %w", err)
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release sweep lease: %w", err)
	}
	return nil
}

// LocalLocker is a process-local lease for single-instance deployments and
// tests.
type LocalLocker struct {
	mu     sync.Mutex
	tokens map[string]string
	expiry map[string]time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		tokens: make(map[string]string),
		expiry: make(map[string]time.Time),
	}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if _, held := l.tokens[key]; held && now.Before(l.expiry[key]) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.tokens[key] = token
	l.expiry[key] = now.Add(ttl)
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tokens[key] == token {
		delete(l.tokens, key)
		delete(l.expiry, key)
	}
	return nil
}
