package anomalysync

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

var errLockNotObtained = errors.New("lock not obtained")

// Locker hands out a cluster-wide mutex. release must be called once.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, errLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
