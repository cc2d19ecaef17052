package broker

import (
	"context"
	"sync"
)

// ChannelPublisher is a Publisher bound to a single channel.
type ChannelPublisher struct {
	pub     Publisher
	channel string
	mu      sync.Mutex
	closed  bool
}

// Bind returns a publisher that always targets channel.
func Bind(pub Publisher, channel string) *ChannelPublisher {
	return &ChannelPublisher{pub: pub, channel: channel}
}

// Channel returns the bound channel name.
func (c *ChannelPublisher) Channel() string {
	return c.channel
}

// Publish sends payload to the bound channel. Publishing after Close fails.
func (c *ChannelPublisher) Publish(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.pub.Publish(ctx, c.channel, payload)
}

// Close marks the publisher closed.
func (c *ChannelPublisher) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
