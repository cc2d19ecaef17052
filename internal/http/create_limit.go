package httpx

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// pruneEvery bounds how many admissions pass between full sweeps of idle
// clients in the memory limiter.
const pruneEvery = 1024

// Admission is the outcome of one project-creation check.
type Admission struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// CreateLimiter caps how many projects a single client may create within a
// sliding window.
type CreateLimiter interface {
	Admit(ctx context.Context, client string) (Admission, error)
	Close() error
}

type memoryCreateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	seen   map[string][]time.Time
	checks int
}

// NewMemoryCreateLimiter keeps creation timestamps per client in process.
func NewMemoryCreateLimiter(limit int, window time.Duration) CreateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &memoryCreateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		seen:   make(map[string][]time.Time),
	}
}

func (l *memoryCreateLimiter) Admit(_ context.Context, client string) (Admission, error) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks++
	if l.checks%pruneEvery == 0 {
		for c, stamps := range l.seen {
			if len(since(stamps, cutoff)) == 0 {
				delete(l.seen, c)
			}
		}
	}

	recent := since(l.seen[client], cutoff)
	if len(recent) >= l.limit {
		l.seen[client] = recent
		return Admission{Limit: l.limit, RetryAfter: recent[0].Add(l.window).Sub(now)}, nil
	}
	recent = append(recent, now)
	l.seen[client] = recent
	return Admission{Allowed: true, Limit: l.limit, Remaining: l.limit - len(recent)}, nil
}

func (l *memoryCreateLimiter) Close() error { return nil }

// since drops the stamps at or before cutoff. stamps is sorted.
func since(stamps []time.Time, cutoff time.Time) []time.Time {
	for i, ts := range stamps {
		if ts.After(cutoff) {
			return stamps[i:]
		}
	}
	return nil
}

// limitCreates admits POST /project per client address. Limiter errors let
// the request through.
func (r *Router) limitCreates(next http.HandlerFunc) http.HandlerFunc {
	if r.opts.CreateLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			next(w, req)
			return
		}
		admission, err := r.opts.CreateLimiter.Admit(req.Context(), "create:"+clientIP(req))
		if err != nil {
			r.logger.Warn("create limiter unavailable", "error", err)
			r.metrics.admissions.WithLabelValues("error").Inc()
			next(w, req)
			return
		}
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(admission.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(max(admission.Remaining, 0)))
		if !admission.Allowed {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(admission.RetryAfter.Seconds()))))
			r.metrics.admissions.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		r.metrics.admissions.WithLabelValues("admitted").Inc()
		next(w, req)
	}
}

// clientIP prefers the first X-Forwarded-For hop, as the API usually sits
// behind the edge or a load balancer.
func clientIP(req *http.Request) string {
	if hops := req.Header.Get("X-Forwarded-For"); hops != "" {
		first, _, _ := strings.Cut(hops, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
