package storage

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const cartKeyPrefix = "cart:"

// RedisCart keeps each user's cart as a hash of SKU id to quantity. The
// engine only removes entries after a checkout commits; adding is here for
// the collaborating cart surface and the load generator.
type RedisCart struct {
	client *redis.Client
}

func NewRedisCart(client *redis.Client) *RedisCart {
	return &RedisCart{client: client}
}

func (c *RedisCart) Add(ctx context.Context, userID string, skuID int64, qty int) error {
	return c.client.HIncrBy(ctx, cartKeyPrefix+userID, strconv.FormatInt(skuID, 10), int64(qty)).Err()
}

func (c *RedisCart) Remove(ctx context.Context, userID string, skuIDs []int64) error {
	if len(skuIDs) == 0 {
		return nil
	}
	fields := make([]string, 0, len(skuIDs))
	for _, id := range skuIDs {
		fields = append(fields, strconv.FormatInt(id, 10))
	}
	return c.client.HDel(ctx, cartKeyPrefix+userID, fields...).Err()
}

func (c *RedisCart) Items(ctx context.Context, userID string) (map[int64]int, error) {
	raw, err := c.client.HGetAll(ctx, cartKeyPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	items := make(map[int64]int, len(raw))
	for field, value := range raw {
		skuID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		items[skuID] = qty
	}
	return items, nil
}
