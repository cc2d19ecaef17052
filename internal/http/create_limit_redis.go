package httpx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	createLimitPrefix  = "maybe-vercel:create:"
	createLimitTimeout = 250 * time.Millisecond
)

// redisCreateLimiter keeps one sorted set of creation times per client so
// every API replica shares the same window.
type redisCreateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisCreateLimiter connects to Redis and verifies the connection.
func NewRedisCreateLimiter(ctx context.Context, addr, password string, db, limit int, window time.Duration) (CreateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping create limit redis: %w", err)
	}
	return newRedisCreateLimiter(client, limit, window), nil
}

func newRedisCreateLimiter(client *redis.Client, limit int, window time.Duration) *redisCreateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &redisCreateLimiter{client: client, limit: limit, window: window}
}

// Admit trims the client's set to the window and records a creation when
// there is room. Two replicas racing on the same client may both admit.
func (l *redisCreateLimiter) Admit(ctx context.Context, client string) (Admission, error) {
	ctx, cancel := context.WithTimeout(ctx, createLimitTimeout)
	defer cancel()

	key := createLimitPrefix + client
	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixMilli(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	count := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return Admission{}, fmt.Errorf("read create window: %w", err)
	}

	used := int(count.Val())
	if used >= l.limit {
		retry := l.window
		if first := oldest.Val(); len(first) > 0 {
			retry = time.UnixMilli(int64(first[0].Score)).Add(l.window).Sub(now)
		}
		return Admission{Limit: l.limit, RetryAfter: retry}, nil
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.PExpire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Admission{}, fmt.Errorf("record creation: %w", err)
	}
	return Admission{Allowed: true, Limit: l.limit, Remaining: l.limit - used - 1}, nil
}

func (l *redisCreateLimiter) Close() error {
	return l.client.Close()
}
