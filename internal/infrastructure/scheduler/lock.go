package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release gives up a held lock
type Release func(ctx context.Context)

// Locker serializes job runs. Acquire reports false, without error, when the
// lock is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error)
}

// NewLocker returns a Redis lock shared by every instance when client is set,
// and a process-local lock otherwise
func NewLocker(client *redis.Client) Locker {
	if client == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(client, "")
}

// DefaultLockPrefix namespaces job lock keys in Redis
const DefaultLockPrefix = "subgov:scheduler:lock:"

// releaseScript deletes the key only while it still holds our token, so a run
// that outlived its TTL cannot free a lock taken by the next holder
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock with token-checked release
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}, true, nil
}

// LocalLocker guards jobs within a single process
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

// Acquire implements Locker. An expired hold is treated as free.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until
	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
	}, true, nil
}
