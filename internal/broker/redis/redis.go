// Package redis implements the broker on Redis pub/sub.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/broker"
)

const pingTimeout = 2 * time.Second

// Broker wraps a go-redis client.
type Broker struct {
	client *goredis.Client
	logger *slog.Logger
}

var _ broker.Broker = (*Broker)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*Broker, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, logger: logger}
}

// Client exposes the underlying client for components sharing the connection.
func (b *Broker) Client() *goredis.Client {
	return b.client
}

// Publish sends payload to channel.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection for channel and waits for
// the subscription confirmation before returning.
func (b *Broker) Subscribe(ctx context.Context, channel string, handler broker.Handler) (broker.Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}
	sub := &subscription{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			handler([]byte(msg.Payload))
		}
	}()
	b.logger.Debug("redis channel subscribed", "channel", channel)
	return sub, nil
}

// Ping checks connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the client.
func (b *Broker) Close() error {
	return b.client.Close()
}

type subscription struct {
	ps   *goredis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	})
	return s.err
}
