package redislock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker implements payment.Locker with SETNX keys that expire after TTL,
// so a crashed holder cannot block an order forever.
type Locker struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Locker{Client: client, TTL: ttl}
}

func (l *Locker) TryLock(ctx context.Context, key, owner string) (bool, error) {
	return l.Client.SetNX(ctx, key, owner, l.TTL).Result()
}

// Unlock deletes key only when it still holds owner's value.
func (l *Locker) Unlock(ctx context.Context, key, owner string) error {
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != owner {
		return nil
	}
	return l.Client.Del(ctx, key).Err()
}

// Held reports whether key is currently locked by anyone.
func (l *Locker) Held(ctx context.Context, key string) (bool, error) {
	n, err := l.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
