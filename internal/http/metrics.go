package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	projects   *prometheus.CounterVec
	admissions *prometheus.CounterVec
}

// newAPIMetrics builds the orchestrator collectors and registers them on
// reg when it is not nil.
func newAPIMetrics(reg prometheus.Registerer) *apiMetrics {
	m := &apiMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maybe_vercel",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Orchestrator requests by route and status",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maybe_vercel",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Orchestrator handler latency by route",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10},
		}, []string{"route"}),
		projects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maybe_vercel",
			Subsystem: "api",
			Name:      "projects_created_total",
			Help:      "Project creation attempts by outcome",
		}, []string{"outcome"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maybe_vercel",
			Subsystem: "api",
			Name:      "create_admissions_total",
			Help:      "Create limiter decisions: admitted, rejected or error",
		}, []string{"decision"}),
	}
	if reg == nil {
		return m
	}
	m.requests = registerCounterVec(reg, m.requests)
	m.latency = registerHistogramVec(reg, m.latency)
	m.projects = registerCounterVec(reg, m.projects)
	m.admissions = registerCounterVec(reg, m.admissions)
	return m
}

func (m *apiMetrics) observe(route string, status int, took time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(took.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return h
}
