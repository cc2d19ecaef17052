package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/broker"
	brokermem "github.com/GeneCodeSavvy/maybe-vercel/internal/broker/memory"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   []string
	gate   chan struct{}
	closed bool
}

func (c *fakeConn) Send(payload []byte) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.msgs = append(c.msgs, string(payload))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestRelay(b broker.Broker, queue int) *Relay {
	return NewRelay(b, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{QueueSize: queue})
}

func publish(t *testing.T, b broker.Broker, channel string, msgs ...string) {
	t.Helper()
	for _, msg := range msgs {
		if err := b.Publish(context.Background(), channel, []byte(msg)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
}

func TestSecondSubscribeOnSameConnectionIsRejected(t *testing.T) {
	b := brokermem.New()
	relay := newTestRelay(b, 10)
	conn := &fakeConn{}
	ctx := context.Background()

	if err := relay.Subscribe(ctx, conn, "logs:a"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := relay.Subscribe(ctx, conn, "logs:b"); !errors.Is(err, ErrChannelInUse) {
		t.Fatalf("expected ErrChannelInUse, got %v", err)
	}
	if channel, _ := relay.Channel(conn); channel != "logs:a" {
		t.Fatalf("original subscription replaced: %s", channel)
	}

	publish(t, b, "logs:a", "one")
	publish(t, b, "logs:b", "other")
	waitFor(t, func() bool { return len(conn.received()) == 1 })
	if got := conn.received(); got[0] != "one" {
		t.Fatalf("unexpected messages %v", got)
	}
}

func TestMessagesArriveInPublishOrder(t *testing.T) {
	b := brokermem.New()
	relay := newTestRelay(b, 100)
	first, second := &fakeConn{}, &fakeConn{}
	for _, c := range []*fakeConn{first, second} {
		if err := relay.Subscribe(context.Background(), c, "logs:p"); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	var want []string
	for i := 0; i < 50; i++ {
		want = append(want, fmt.Sprintf(`{"log":"line %d"}`, i))
	}
	publish(t, b, "logs:p", want...)

	for _, c := range []*fakeConn{first, second} {
		waitFor(t, func() bool { return len(c.received()) == len(want) })
		for i, msg := range c.received() {
			if msg != want[i] {
				t.Fatalf("message %d out of order: %s", i, msg)
			}
		}
	}
}

func TestOnlyMessagesInsideSubscriptionWindowAreDelivered(t *testing.T) {
	b := brokermem.New()
	relay := newTestRelay(b, 10)
	conn := &fakeConn{}

	publish(t, b, "logs:p", "before")
	if err := relay.Subscribe(context.Background(), conn, "logs:p"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	publish(t, b, "logs:p", "during")
	waitFor(t, func() bool { return len(conn.received()) == 1 })
	relay.Unsubscribe(conn)
	publish(t, b, "logs:p", "after")

	time.Sleep(20 * time.Millisecond)
	if got := conn.received(); len(got) != 1 || got[0] != "during" {
		t.Fatalf("unexpected messages %v", got)
	}
}

func TestBrokerSubscriptionIsShared(t *testing.T) {
	b := brokermem.New()
	relay := newTestRelay(b, 10)
	a, c := &fakeConn{}, &fakeConn{}

	for _, conn := range []*fakeConn{a, c} {
		if err := relay.Subscribe(context.Background(), conn, "logs:p"); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if n := b.Subscribers("logs:p"); n != 1 {
		t.Fatalf("expected one broker subscription, got %d", n)
	}
	if n := relay.Subscribers("logs:p"); n != 2 {
		t.Fatalf("expected two relay subscribers, got %d", n)
	}

	relay.Unsubscribe(a)
	if n := b.Subscribers("logs:p"); n != 1 {
		t.Fatalf("broker subscription released too early: %d", n)
	}
	relay.Unsubscribe(c)
	if n := b.Subscribers("logs:p"); n != 0 {
		t.Fatalf("broker subscription leaked: %d", n)
	}
	relay.Unsubscribe(c)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := brokermem.New()
	relay := newTestRelay(b, 2)
	slow := &fakeConn{gate: make(chan struct{})}
	fast := &fakeConn{}
	for _, conn := range []*fakeConn{slow, fast} {
		if err := relay.Subscribe(context.Background(), conn, "logs:p"); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = b.Publish(context.Background(), "logs:p", []byte(fmt.Sprint(i)))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	waitFor(t, func() bool { return len(fast.received()) == 10 })

	close(slow.gate)
	time.Sleep(20 * time.Millisecond)
	if n := len(slow.received()); n == 0 || n > 3 {
		t.Fatalf("expected slow subscriber to drop messages, got %d", n)
	}
}

func TestInvalidChannelIsRejected(t *testing.T) {
	relay := newTestRelay(brokermem.New(), 10)
	for _, channel := range []string{"", "logs:", "project:x", "logs:*"} {
		if err := relay.Subscribe(context.Background(), &fakeConn{}, channel); !errors.Is(err, ErrInvalidChannel) {
			t.Fatalf("channel %q: expected ErrInvalidChannel, got %v", channel, err)
		}
	}
}

type failingBroker struct {
	*brokermem.Broker
	fail bool
}

func (f *failingBroker) Subscribe(ctx context.Context, channel string, handler broker.Handler) (broker.Subscription, error) {
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return f.Broker.Subscribe(ctx, channel, handler)
}

func TestBrokerFailureLeavesConnectionFree(t *testing.T) {
	b := &failingBroker{Broker: brokermem.New(), fail: true}
	relay := newTestRelay(b, 10)
	conn := &fakeConn{}

	if err := relay.Subscribe(context.Background(), conn, "logs:p"); err == nil {
		t.Fatal("expected subscribe error")
	}
	if _, ok := relay.Channel(conn); ok {
		t.Fatal("failed subscription left connection registered")
	}

	b.fail = false
	if err := relay.Subscribe(context.Background(), conn, "logs:p"); err != nil {
		t.Fatalf("retry subscribe: %v", err)
	}
	publish(t, b, "logs:p", "ok")
	waitFor(t, func() bool { return len(conn.received()) == 1 })
}
