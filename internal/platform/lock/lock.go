// Package lock provides the mutual exclusion that keeps a single settlement
// driver per campaign. A Redis lock covers several processor replicas; the
// local lock covers a single process.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
	lockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`
)

var (
	ErrEmptyKey   = errors.New("lock key is empty")
	ErrInvalidTTL = errors.New("lock ttl must be positive")
	ErrLockLost   = errors.New("lock is no longer held")
)

// Locker hands out tokens for keys. TryLock reports false when another holder
// owns the key; Release only frees a key still held with the given token.
// Extend pushes the expiry of a held lock back by a full TTL and returns
// ErrLockLost when the token no longer owns the key. RefreshInterval is how
// often a holder has to extend; zero means locks never expire.
type Locker interface {
	TryLock(ctx context.Context, key string) (string, bool, error)
	Extend(ctx context.Context, key, token string) error
	Release(ctx context.Context, key, token string) error
	RefreshInterval() time.Duration
}

// Keep extends the lock every interval until ctx is done. The first failed
// extension is handed to lost and ends the loop.
func Keep(ctx context.Context, l Locker, key, token string, interval time.Duration, lost func(error)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Extend(ctx, key, token); err != nil {
				if ctx.Err() != nil {
					return
				}
				lost(err)
				return
			}
		}
	}
}

// New returns a Redis locker when client is set, otherwise a local one.
func New(client *redis.Client, ttl time.Duration) Locker {
	if client == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(client, ttl)
}

type RedisLocker struct {
	client  *redis.Client
	release *redis.Script
	extend  *redis.Script
	ttl     time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  client,
		release: redis.NewScript(lockReleaseScript),
		extend:  redis.NewScript(lockExtendScript),
		ttl:     ttl,
	}
}

// RefreshInterval leaves two refresh rounds of slack before the key expires.
func (l *RedisLocker) RefreshInterval() time.Duration {
	return l.ttl / 3
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if l.ttl <= 0 {
		return "", false, ErrInvalidTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}

func (l *RedisLocker) Extend(ctx context.Context, key, token string) error {
	if key == "" {
		return ErrEmptyKey
	}
	extended, err := l.extend.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if extended == 0 {
		return ErrLockLost
	}
	return nil
}

// LocalLocker is an in-process Locker. Locks do not expire.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, true, nil
}

func (l *LocalLocker) Extend(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if token == "" || l.held[key] != token {
		return ErrLockLost
	}
	return nil
}

func (l *LocalLocker) RefreshInterval() time.Duration {
	return 0
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
