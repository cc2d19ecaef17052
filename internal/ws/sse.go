package ws

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var keepAliveFrame = []byte(": keep-alive\n\n")

// SSEClient writes relay messages to an event stream. Each log event carries
// a sequential id so a reader can tell whether it missed anything.
type SSEClient struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	log     *slog.Logger
	now     func() time.Time
	seq     uint64
	wrote   time.Time
	closed  bool
}

// NewSSEClient wraps an HTTP response already switched to text/event-stream.
func NewSSEClient(w io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	c := &SSEClient{w: w, flusher: flusher, log: logger, now: time.Now}
	c.wrote = c.now()
	return c
}

// Send writes payload as one event.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, "id: "...)
	frame = strconv.AppendUint(frame, c.seq, 10)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	if err := c.write(frame); err != nil {
		c.log.Warn("sse send failed", "error", err)
		return err
	}
	return nil
}

// KeepAlive writes a comment frame when nothing has been written for idle.
// It reports whether a frame was written.
func (c *SSEClient) KeepAlive(idle time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Sub(c.wrote) < idle {
		return false, nil
	}
	if err := c.write(keepAliveFrame); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SSEClient) write(frame []byte) error {
	if c.closed {
		return io.EOF
	}
	if _, err := c.w.Write(frame); err != nil {
		c.closed = true
		return err
	}
	c.flusher.Flush()
	c.wrote = c.now()
	return nil
}

// Close makes later writes fail with io.EOF.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
