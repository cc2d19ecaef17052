package ws

import "github.com/prometheus/client_golang/prometheus"

type relayMetrics struct {
	subscriptions prometheus.Gauge
	channels      prometheus.Gauge
	delivered     prometheus.Counter
	dropped       prometheus.Counter
}

func newRelayMetrics(reg prometheus.Registerer) *relayMetrics {
	m := &relayMetrics{
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maybe_vercel",
			Subsystem: "relay",
			Name:      "subscriptions",
			Help:      "Connections currently subscribed to a log channel",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maybe_vercel",
			Subsystem: "relay",
			Name:      "broker_channels",
			Help:      "Log channels with an active broker subscription",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maybe_vercel",
			Subsystem: "relay",
			Name:      "messages_delivered_total",
			Help:      "Messages queued for delivery to a subscriber",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maybe_vercel",
			Subsystem: "relay",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped because a subscriber queue was full",
		}),
	}
	if reg == nil {
		return m
	}
	m.subscriptions = registerGauge(reg, m.subscriptions)
	m.channels = registerGauge(reg, m.channels)
	m.delivered = registerCounter(reg, m.delivered)
	m.dropped = registerCounter(reg, m.dropped)
	return m
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge) prometheus.Gauge {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing
			}
		}
	}
	return g
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}
