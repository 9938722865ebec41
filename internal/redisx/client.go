package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// FirstSeen records id for service and reports whether this is the first
// time it was seen.
func FirstSeen(ctx context.Context, rdb *redis.Client, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), "1", TTLDedup).Result()
}

func ForgetSeen(ctx context.Context, rdb *redis.Client, service, id string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}

func MarkSoldOut(ctx context.Context, rdb *redis.Client, productID string) error {
	return rdb.Set(ctx, fmt.Sprintf(KeySoldOut, productID), "1", TTLSoldOut).Err()
}

func IsSoldOut(ctx context.Context, rdb *redis.Client, productID string) (bool, error) {
	return Exists(ctx, rdb, fmt.Sprintf(KeySoldOut, productID))
}

func ClearSoldOut(ctx context.Context, rdb *redis.Client, productID string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeySoldOut, productID)).Err()
}
