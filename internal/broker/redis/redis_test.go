package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) (*Broker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := New(context.Background(), mr.Addr(), "", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

type collector struct {
	mu  sync.Mutex
	got []string
}

func (c *collector) handle(p []byte) {
	c.mu.Lock()
	c.got = append(c.got, string(p))
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func TestSubscribeDeliversInPublishOrder(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()
	var c collector

	sub, err := b.Subscribe(ctx, "logs:calm-red-fox", c.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)

	var want []string
	for i := 0; i < 50; i++ {
		line := fmt.Sprintf(`{"log":"line %d"}`, i)
		want = append(want, line)
		require.NoError(t, b.Publish(ctx, "logs:calm-red-fox", []byte(line)))
	}
	require.Eventually(t, func() bool { return len(c.snapshot()) == len(want) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, c.snapshot())
}

func TestSubscribeIsActiveOnReturn(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()
	var c collector

	sub, err := b.Subscribe(ctx, "logs:a", c.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)

	assert.Equal(t, map[string]int{"logs:a": 1}, mr.PubSubNumSub("logs:a"))
	require.NoError(t, b.Publish(ctx, "logs:b", []byte("other")))
	require.NoError(t, b.Publish(ctx, "logs:a", []byte("mine")))
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"mine"}, c.snapshot())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()
	var c collector

	sub, err := b.Subscribe(ctx, "logs:a", c.handle)
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe(ctx))
	require.NoError(t, sub.Unsubscribe(ctx))

	require.Eventually(t, func() bool { return mr.PubSubNumSub("logs:a")["logs:a"] == 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Publish(ctx, "logs:a", []byte("late")))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestNewFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), addr, "", 0, nil)
	require.Error(t, err)
}

func TestPublishWrapsClientErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}), nil)
	defer b.Close()
	mr.Close()
	err := b.Publish(context.Background(), "logs:a", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish logs:a")
}
