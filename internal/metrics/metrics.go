package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the gateway's collectors. All counters are incremented by
// the dispatcher; gauges track registry population.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	EventsHandled     *prometheus.CounterVec
	EventErrors       *prometheus.CounterVec
	MessagesDelivered prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcendence",
			Subsystem: "gateway",
			Name:      "active_connections",
			Help:      "Number of registered websocket connections.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcendence",
			Subsystem: "gateway",
			Name:      "online_users",
			Help:      "Number of users with at least one connection.",
		}),
		EventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcendence",
			Subsystem: "gateway",
			Name:      "events_handled_total",
			Help:      "Inbound events handled, by event name.",
		}, []string{"event"}),
		EventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcendence",
			Subsystem: "gateway",
			Name:      "event_errors_total",
			Help:      "Inbound events rejected, by event name.",
		}, []string{"event"}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transcendence",
			Subsystem: "gateway",
			Name:      "messages_delivered_total",
			Help:      "Channel messages delivered to recipient connections.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActiveConnections,
			m.OnlineUsers,
			m.EventsHandled,
			m.EventErrors,
			m.MessagesDelivered,
		)
	}
	return m
}
