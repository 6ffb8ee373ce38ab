package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/attendance-tracker/internal/infrastructure/lock"
)

// ErrLockLost is returned by a release when the lock already expired.
var ErrLockLost = errors.New("redis: lock expired before release")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KeyLocker implements lock.Locker with SET NX PX and a token-checked
// release, so several service instances serialize on the same keys.
type KeyLocker struct {
	cache *Cache
	ttl   time.Duration
	poll  time.Duration
}

var _ lock.Locker = (*KeyLocker)(nil)

// NewKeyLocker creates a KeyLocker. ttl bounds how long a crashed holder
// can block a key; poll is the retry interval while waiting.
func NewKeyLocker(cache *Cache, ttl, poll time.Duration) *KeyLocker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	return &KeyLocker{cache: cache, ttl: ttl, poll: poll}
}

// Lock implements lock.Locker.
func (l *KeyLocker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.cache.SetNX(ctx, redisKey, token, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.release(ctx, redisKey, token)
		})
	}, nil
}

func (l *KeyLocker) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.cache.Client(), []string{key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
