package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

// The sold projection is a set of order ids scored by order time, cut by a
// reset watermark. Both writes are order-independent: an order older than
// the latest reset is never counted, whichever event arrives first.

// Scores travel as strings: Lua formats numbers with 14 significant
// digits, which would round a microsecond timestamp.
var addSoldScript = redis.NewScript(`
local w = redis.call('GET', KEYS[2])
if w and tonumber(ARGV[1]) <= tonumber(w) then
	return 0
end
return redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
`)

var resetSoldScript = redis.NewScript(`
local cut = redis.call('GET', KEYS[2])
if not cut or tonumber(ARGV[1]) > tonumber(cut) then
	cut = ARGV[1]
	redis.call('SET', KEYS[2], cut)
end
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cut)
return redis.call('ZCARD', KEYS[1])
`)

func soldKeys(productID string) []string {
	return []string{fmt.Sprintf(KeySold, productID), fmt.Sprintf(KeyResetAt, productID)}
}

// AddSold counts orderID unless it was created at or before the last reset.
// It reports whether the order was newly added.
func AddSold(ctx context.Context, rdb *redis.Client, productID, orderID string, createdAt time.Time) (bool, error) {
	n, err := addSoldScript.Run(ctx, rdb, soldKeys(productID), createdAt.UnixMicro(), orderID).Int64()
	return n > 0, err
}

// ResetSold moves the watermark to at, if later, and drops every order at or
// before it. It returns the orders still counted.
func ResetSold(ctx context.Context, rdb *redis.Client, productID string, at time.Time) (int64, error) {
	return resetSoldScript.Run(ctx, rdb, soldKeys(productID), at.UnixMicro()).Int64()
}

// Sold returns the projected number of sold units, 0 if nothing was
// projected yet.
func Sold(ctx context.Context, rdb *redis.Client, productID string) (int64, error) {
	return rdb.ZCard(ctx, fmt.Sprintf(KeySold, productID)).Result()
}
