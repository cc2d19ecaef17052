package edge

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type edgeMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bytes    prometheus.Counter
}

func newEdgeMetrics(reg prometheus.Registerer) *edgeMetrics {
	m := &edgeMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maybe_vercel",
			Subsystem: "edge",
			Name:      "requests_total",
			Help:      "Edge requests by method and status",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maybe_vercel",
			Subsystem: "edge",
			Name:      "request_duration_seconds",
			Help:      "Time to resolve and stream an edge response",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maybe_vercel",
			Subsystem: "edge",
			Name:      "response_bytes_total",
			Help:      "Bytes streamed from storage to clients",
		}),
	}
	if reg == nil {
		return m
	}
	for _, c := range []prometheus.Collector{m.requests, m.latency, m.bytes} {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				continue
			}
			switch v := are.ExistingCollector.(type) {
			case *prometheus.CounterVec:
				m.requests = v
			case *prometheus.HistogramVec:
				m.latency = v
			case prometheus.Counter:
				m.bytes = v
			}
		}
	}
	return m
}

func (m *edgeMetrics) observe(method string, status int, written int64, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "status": strconv.Itoa(status)}
	m.requests.With(labels).Inc()
	m.latency.With(labels).Observe(duration.Seconds())
	if written > 0 {
		m.bytes.Add(float64(written))
	}
}
