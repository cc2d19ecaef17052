// Package ws relays build log channels from the broker to live connections.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/broker"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
)

const (
	defaultQueueSize   = 100
	unsubscribeTimeout = 5 * time.Second
)

var (
	// ErrChannelInUse is returned when a connection that already has a
	// subscription asks for another one.
	ErrChannelInUse = errors.New("channel already in use")
	// ErrInvalidChannel is returned for names outside the log channel space.
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrRelayClosed is returned by Subscribe after Close.
	ErrRelayClosed = errors.New("relay closed")
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Options tunes a Relay.
type Options struct {
	// QueueSize bounds the messages buffered per subscriber before drops.
	QueueSize int
	// Registerer receives the relay metrics; nil disables registration.
	Registerer prometheus.Registerer
}

// Relay fans broker channels out to subscribers. Each connection may hold at
// most one subscription. The broker is subscribed once per channel no matter
// how many connections follow it.
type Relay struct {
	broker    broker.Broker
	logger    *slog.Logger
	queueSize int
	metrics   *relayMetrics

	mu       sync.RWMutex
	conns    map[Subscriber]*member
	channels map[string]*channelState
	closed   bool
}

type channelState struct {
	name    string
	members map[*member]struct{}
	sub     broker.Subscription
	ready   chan struct{}
	err     error
}

type member struct {
	conn    Subscriber
	channel string
	queue   chan []byte
	done    chan struct{}
}

// NewRelay constructs a relay over b.
func NewRelay(b broker.Broker, logger *slog.Logger, opts Options) *Relay {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		broker:    b,
		logger:    logger,
		queueSize: opts.QueueSize,
		metrics:   newRelayMetrics(opts.Registerer),
		conns:     make(map[Subscriber]*member),
		channels:  make(map[string]*channelState),
	}
}

// Subscribe attaches conn to channel. It returns once the broker has
// acknowledged the channel subscription, so every message published after a
// nil return reaches conn (unless its queue overflows). A second call for the
// same conn fails with ErrChannelInUse and leaves the first subscription
// untouched.
func (r *Relay) Subscribe(ctx context.Context, conn Subscriber, channel string) error {
	if _, ok := domain.ProjectFromChannel(channel); !ok {
		return ErrInvalidChannel
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRelayClosed
	}
	if _, exists := r.conns[conn]; exists {
		r.mu.Unlock()
		return ErrChannelInUse
	}
	m := &member{
		conn:    conn,
		channel: channel,
		queue:   make(chan []byte, r.queueSize),
		done:    make(chan struct{}),
	}
	r.conns[conn] = m
	state, existing := r.channels[channel]
	if !existing {
		state = &channelState{name: channel, members: make(map[*member]struct{}), ready: make(chan struct{})}
		r.channels[channel] = state
	}
	state.members[m] = struct{}{}
	r.mu.Unlock()

	go r.writeLoop(m)

	if !existing {
		r.establish(ctx, state)
	}

	select {
	case <-state.ready:
	case <-ctx.Done():
		r.Unsubscribe(conn)
		return ctx.Err()
	}
	if state.err != nil {
		r.Unsubscribe(conn)
		return state.err
	}
	r.metrics.subscriptions.Inc()
	r.logger.Debug("relay subscribed", "channel", channel)
	return nil
}

// establish performs the broker subscription for a new channel.
func (r *Relay) establish(ctx context.Context, state *channelState) {
	sub, err := r.broker.Subscribe(ctx, state.name, func(payload []byte) {
		r.dispatch(state, payload)
	})

	r.mu.Lock()
	if err != nil {
		state.err = fmt.Errorf("subscribe %s: %w", state.name, err)
		if r.channels[state.name] == state {
			delete(r.channels, state.name)
		}
		close(state.ready)
		r.mu.Unlock()
		r.logger.Warn("relay broker subscribe failed", "channel", state.name, "error", err)
		return
	}
	state.sub = sub
	orphaned := len(state.members) == 0
	if orphaned && r.channels[state.name] == state {
		delete(r.channels, state.name)
	}
	close(state.ready)
	r.mu.Unlock()

	if orphaned {
		r.release(state.name, sub)
		return
	}
	r.metrics.channels.Inc()
}

// dispatch queues payload for every member of state without blocking. A full
// queue drops the message for that member only.
func (r *Relay) dispatch(state *channelState, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for m := range state.members {
		select {
		case m.queue <- payload:
			r.metrics.delivered.Inc()
		default:
			r.metrics.dropped.Inc()
			r.logger.Debug("relay queue full, dropping message", "channel", state.name)
		}
	}
}

func (r *Relay) writeLoop(m *member) {
	defer close(m.done)
	failed := false
	for payload := range m.queue {
		if failed {
			continue
		}
		if err := m.conn.Send(payload); err != nil {
			failed = true
		}
	}
}

// Unsubscribe detaches conn. When conn was the last follower of its channel
// the broker subscription is released too. Unknown connections are ignored.
func (r *Relay) Unsubscribe(conn Subscriber) {
	r.mu.Lock()
	m, ok := r.conns[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, conn)
	state := r.channels[m.channel]
	var release broker.Subscription
	wasActive := false
	if state != nil {
		if _, member := state.members[m]; member {
			delete(state.members, m)
			wasActive = isClosed(state.ready) && state.err == nil
		}
		if len(state.members) == 0 && isClosed(state.ready) {
			delete(r.channels, m.channel)
			release = state.sub
		}
	}
	close(m.queue)
	r.mu.Unlock()

	if wasActive {
		r.metrics.subscriptions.Dec()
	}
	if release != nil {
		r.metrics.channels.Dec()
		r.release(m.channel, release)
	}
}

// Channel reports the channel conn is subscribed to.
func (r *Relay) Channel(conn Subscriber) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.conns[conn]
	if !ok {
		return "", false
	}
	return m.channel, true
}

// Subscribers reports how many connections follow channel.
func (r *Relay) Subscribers(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if state, ok := r.channels[channel]; ok {
		return len(state.members)
	}
	return 0
}

// Close detaches every connection and releases all broker subscriptions.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	conns := make([]Subscriber, 0, len(r.conns))
	for conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.Unlock()
	for _, conn := range conns {
		r.Unsubscribe(conn)
		conn.Close()
	}
}

func (r *Relay) release(channel string, sub broker.Subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if err := sub.Unsubscribe(ctx); err != nil {
		r.logger.Warn("relay broker unsubscribe failed", "channel", channel, "error", err)
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
