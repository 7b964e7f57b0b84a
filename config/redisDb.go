package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis pings addr with backoff and returns the client plus a lock client on top of it.
// attempts bounds the loop; 0 retries until ctx is done.
func ConnectRedis(ctx context.Context, addr string, attempts int) (*redis.Client, *redislock.Client, error) {
	var attempt int
	for {
		attempt++
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: "",
			DB:       0, // use default DB
			PoolSize: 100,
		})
		err := rdb.Ping(ctx).Err()
		if err == nil {
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, addr)
			return rdb, redislock.New(rdb), nil
		}
		_ = rdb.Close()

		if attempts > 0 && attempt >= attempts {
			return nil, nil, fmt.Errorf("connect redis %s after %d attempts: %w", addr, attempt, err)
		}
		sleep := backoff(attempt)
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, addr, err, sleep)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
