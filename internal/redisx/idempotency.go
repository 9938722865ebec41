package redisx

import (
	"context"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
)

type IdemState int

const (
	// IdemNew: the caller now owns the key and must Complete or Release it.
	IdemNew IdemState = iota
	// IdemPending: another request with the same key is in flight.
	IdemPending
	// IdemDone: a response is stored and should be replayed.
	IdemDone
)

const idemPending = "pending"

// BeginIdempotent claims key. The claim expires after TTLIdemPending so a
// crashed owner cannot block the key forever.
func BeginIdempotent(ctx context.Context, rdb *redis.Client, key string) (IdemState, []byte, error) {
	k := fmt.Sprintf(KeyIdemPurchase, key)
	ok, err := rdb.SetNX(ctx, k, idemPending, TTLIdemPending).Result()
	if err != nil {
		return IdemNew, nil, err
	}
	if ok {
		return IdemNew, nil, nil
	}
	v, err := rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return IdemPending, nil, nil
	}
	if err != nil {
		return IdemNew, nil, err
	}
	if string(v) == idemPending {
		return IdemPending, nil, nil
	}
	return IdemDone, v, nil
}

func CompleteIdempotent(ctx context.Context, rdb *redis.Client, key string, body []byte) error {
	return rdb.Set(ctx, fmt.Sprintf(KeyIdemPurchase, key), body, TTLIdempotency).Err()
}

func ReleaseIdempotent(ctx context.Context, rdb *redis.Client, key string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyIdemPurchase, key)).Err()
}
