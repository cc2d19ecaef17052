package httpx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateLimiterSlidesWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryCreateLimiter(2, time.Minute).(*memoryCreateLimiter)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	a, err := l.Admit(ctx, "create:1.2.3.4")
	require.NoError(t, err)
	require.True(t, a.Allowed)
	require.Equal(t, 1, a.Remaining)

	now = now.Add(30 * time.Second)
	a, _ = l.Admit(ctx, "create:1.2.3.4")
	require.True(t, a.Allowed)
	require.Equal(t, 0, a.Remaining)

	now = now.Add(10 * time.Second)
	a, _ = l.Admit(ctx, "create:1.2.3.4")
	require.False(t, a.Allowed)
	require.Equal(t, 20*time.Second, a.RetryAfter)

	// The first creation leaves the window; the second still counts.
	now = now.Add(21 * time.Second)
	a, _ = l.Admit(ctx, "create:1.2.3.4")
	require.True(t, a.Allowed)
	require.Equal(t, 0, a.Remaining)

	a, _ = l.Admit(ctx, "create:5.6.7.8")
	require.True(t, a.Allowed)
}

func TestMemoryCreateLimiterForgetsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryCreateLimiter(1, time.Minute).(*memoryCreateLimiter)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Admit(ctx, "create:idle")
	now = now.Add(2 * time.Minute)
	for i := 1; i < pruneEvery; i++ {
		_, _ = l.Admit(ctx, "create:busy")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotContains(t, l.seen, "create:idle")
	require.Contains(t, l.seen, "create:busy")
}

func TestRedisCreateLimiterSharesWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	newLimiter := func() *redisCreateLimiter {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		l := newRedisCreateLimiter(client, 2, time.Minute)
		t.Cleanup(func() { _ = l.Close() })
		return l
	}
	first, second := newLimiter(), newLimiter()
	ctx := context.Background()

	a, err := first.Admit(ctx, "create:1.2.3.4")
	require.NoError(t, err)
	require.True(t, a.Allowed)
	require.Equal(t, 1, a.Remaining)

	a, err = second.Admit(ctx, "create:1.2.3.4")
	require.NoError(t, err)
	require.True(t, a.Allowed)
	require.Equal(t, 0, a.Remaining)

	a, err = first.Admit(ctx, "create:1.2.3.4")
	require.NoError(t, err)
	require.False(t, a.Allowed)
	require.Greater(t, a.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, a.RetryAfter, time.Minute)

	a, err = second.Admit(ctx, "create:9.9.9.9")
	require.NoError(t, err)
	require.True(t, a.Allowed)

	members, err := mr.ZMembers(createLimitPrefix + "create:1.2.3.4")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Greater(t, mr.TTL(createLimitPrefix+"create:1.2.3.4"), time.Duration(0))
}

func TestRedisCreateLimiterReportsOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	l := newRedisCreateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 1, time.Minute)
	defer l.Close()
	mr.Close()

	_, err := l.Admit(context.Background(), "create:1.2.3.4")
	require.Error(t, err)
}
