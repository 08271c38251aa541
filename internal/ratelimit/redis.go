package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lithammer/shortuuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per client and endpoint, scored by request
// time in nanoseconds. Old members are trimmed on write and idle keys expire.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit"}
}

func (s *RedisStore) key(clientKey, endpoint string) string {
	return s.prefix + ":" + endpoint + ":" + clientKey
}

func (s *RedisStore) CountRequestsSince(ctx context.Context, clientKey, endpoint string, since time.Time) (int64, error) {
	n, err := s.client.ZCount(ctx, s.key(clientKey, endpoint), strconv.FormatInt(since.UnixNano(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}
	return n, nil
}

func (s *RedisStore) AddRequest(ctx context.Context, clientKey, endpoint string, at time.Time) error {
	key := s.key(clientKey, endpoint)
	score := at.UnixNano()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(score),
			Member: strconv.FormatInt(score, 10) + "-" + shortuuid.New(),
		})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(at.Add(-Window).UnixNano(), 10))
		pipe.Expire(ctx, key, Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add request: %w", err)
	}
	return nil
}
