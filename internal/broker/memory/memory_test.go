package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesOnlyChannelSubscribers(t *testing.T) {
	b := New()
	ctx := context.Background()
	var a, other []string

	subA, err := b.Subscribe(ctx, "logs:a", func(p []byte) { a = append(a, string(p)) })
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "logs:b", func(p []byte) { other = append(other, string(p)) })
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "logs:a", []byte("1")))
	require.NoError(t, b.Publish(ctx, "logs:a", []byte("2")))
	require.NoError(t, subA.Unsubscribe(ctx))
	require.NoError(t, b.Publish(ctx, "logs:a", []byte("3")))

	assert.Equal(t, []string{"1", "2"}, a)
	assert.Empty(t, other)
	assert.Equal(t, 0, b.Subscribers("logs:a"))
	assert.Equal(t, 1, b.Subscribers("logs:b"))
}

func TestClosedBrokerRejectsOperations(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(context.Background(), "c", nil))
	_, err := b.Subscribe(context.Background(), "c", func([]byte) {})
	assert.Error(t, err)
	assert.Error(t, b.Ping(context.Background()))
}
