// Package memory is an in-process broker for tests and single-process mode.
package memory

import (
	"context"
	"sync"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/broker"
)

// Broker delivers synchronously to subscribers in publish order.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

var _ broker.Broker = (*Broker)(nil)

type subscription struct {
	b       *Broker
	channel string
	handler broker.Handler
}

// New returns an empty broker.
func New() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

// Publish hands payload to every current subscriber of channel.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return broker.ErrClosed
	}
	for sub := range b.subs[channel] {
		sub.handler(append([]byte(nil), payload...))
	}
	return nil
}

// Subscribe registers handler on channel.
func (b *Broker) Subscribe(ctx context.Context, channel string, handler broker.Handler) (broker.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, broker.ErrClosed
	}
	sub := &subscription{b: b, channel: channel, handler: handler}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

// Subscribers reports the number of subscriptions on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Ping always succeeds while the broker is open.
func (b *Broker) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return broker.ErrClosed
	}
	return nil
}

// Close drops every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[*subscription]struct{})
	return nil
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if subs, ok := s.b.subs[s.channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.b.subs, s.channel)
		}
	}
	return nil
}
