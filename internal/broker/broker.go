// Package broker abstracts the publish/subscribe service carrying build logs.
// Delivery is at-most-once fan-out with no persistence.
package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("broker: closed")

// Handler receives every payload published on a subscribed channel, in
// publish order. Handlers must not block for long.
type Handler func(payload []byte)

// Subscription is an active channel subscription.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// Publisher publishes payloads to named channels.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Broker publishes and subscribes. Subscribe returns only once the broker has
// acknowledged the subscription, so nothing published afterwards is missed.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}
