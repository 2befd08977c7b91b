package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cancelDueKey  = "orders:cancel:due"
	ratingJobsKey = "orders:rating:jobs"
)

// popDueScript claims every entry due at or before the given timestamp in
// one round trip, so two pollers never fire the same check.
var popDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #due > 0 then
	redis.call('ZREM', KEYS[1], unpack(due))
end
return due
`)

// RedisQueue backs both background channels of the engine: the deferred
// cancellation checks (sorted set scored by fire time, durable across
// restarts) and the rating recompute signals (plain list).
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Schedule(ctx context.Context, orderNo string, fireAt time.Time) error {
	return q.client.ZAdd(ctx, cancelDueKey, redis.Z{
		Score:  float64(fireAt.Unix()),
		Member: orderNo,
	}).Err()
}

func (q *RedisQueue) Cancel(ctx context.Context, orderNo string) error {
	return q.client.ZRem(ctx, cancelDueKey, orderNo).Err()
}

func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	due, err := popDueScript.Run(ctx, q.client, []string{cancelDueKey},
		strconv.FormatInt(now.Unix(), 10), limit).StringSlice()
	if err != nil {
		return nil, err
	}
	return due, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, productID int64) error {
	return q.client.LPush(ctx, ratingJobsKey, strconv.FormatInt(productID, 10)).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	result, err := q.client.BRPop(ctx, timeout, ratingJobsKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	// BRPOP returns [key, value].
	productID, err := strconv.ParseInt(result[1], 10, 64)
	if err != nil {
		return 0, false, err
	}
	return productID, true, nil
}
