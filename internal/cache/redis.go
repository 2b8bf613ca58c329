package cache

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// InitRedis connects the latest-price cache. Redis is optional: an empty
// address or an unreachable server returns nil and the history store
// degrades to memory plus Postgres.
func InitRedis(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		log.Println("REDIS_URL not set, running without the Redis cache")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: failed to connect to Redis at %s, running without the cache: %v", addr, err)
		client.Close()
		return nil
	}
	log.Println("Connected to Redis")
	return client
}
