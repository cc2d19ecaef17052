// Package nats implements the broker on core NATS subjects. Channel names
// are used verbatim as subjects.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/broker"
)

// Broker wraps a NATS connection.
type Broker struct {
	conn   *natsgo.Conn
	logger *slog.Logger
}

var _ broker.Broker = (*Broker)(nil)

// New connects to the NATS server at url.
func New(url string, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := natsgo.Connect(url,
		natsgo.Name("maybe-vercel"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Broker{conn: conn, logger: logger}, nil
}

// Publish sends payload to the subject named channel.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers an async handler. NATS invokes handlers of a single
// subscription sequentially, which preserves publish order. The flush makes
// sure the server has processed the interest before returning.
func (b *Broker) Subscribe(ctx context.Context, channel string, handler broker.Handler) (broker.Subscription, error) {
	sub, err := b.conn.Subscribe(channel, func(msg *natsgo.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", channel, err)
	}
	if err := b.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return subscription{sub: sub}, nil
}

// Ping flushes the connection, round tripping to the server.
func (b *Broker) Ping(ctx context.Context) error {
	return b.conn.FlushWithContext(ctx)
}

// Close drains and closes the connection.
func (b *Broker) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

type subscription struct {
	sub *natsgo.Subscription
}

func (s subscription) Unsubscribe(ctx context.Context) error {
	return s.sub.Unsubscribe()
}
