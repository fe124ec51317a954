// Package runlock keeps overlapping scheduled runs from sending twice when
// more than one scheduler replica is deployed.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by Acquire when another holder owns the lock.
var ErrLocked = errors.New("run lock held by another process")

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Lock is a single Redis key with an expiry. The token written on Acquire
// must be passed to Release so only the holder can clear it.
type Lock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// New creates a Lock on key.
func New(client redis.Cmdable, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Acquire takes the lock for token.
func (l *Lock) Acquire(ctx context.Context, token string) error {
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Release deletes the lock if token still owns it. It reports whether a key
// was removed; false means the lock expired or was taken over.
func (l *Lock) Release(ctx context.Context, token string) (bool, error) {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", l.key, err)
	}
	return n == 1, nil
}
