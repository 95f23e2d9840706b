// Package metrics exposes Prometheus collectors for rooms, members,
// connections and relayed messages.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Tyrowin/roomchat/internal/lifecycle"
)

const namespace = "roomchat"

// Collector tracks server state. It is a lifecycle sink and also observes
// connection open/close from the transport.
type Collector struct {
	rooms       prometheus.Gauge
	members     prometheus.Gauge
	connections prometheus.Gauge
	messages    prometheus.Counter
	transitions *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms currently open.",
		}),
		members: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Room memberships currently held.",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket connections.",
		}),
		messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Chat messages relayed to rooms.",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Room lifecycle transitions by kind.",
		}, []string{"kind"}),
	}
}

// Name implements lifecycle.Sink.
func (c *Collector) Name() string { return "metrics" }

// Handle implements lifecycle.Sink.
func (c *Collector) Handle(_ context.Context, ev lifecycle.Event) error {
	c.transitions.WithLabelValues(string(ev.Kind)).Inc()
	c.rooms.Set(float64(ev.Rooms))
	c.members.Set(float64(ev.Members))
	if ev.Kind == lifecycle.MessageRelayed {
		c.messages.Inc()
	}
	return nil
}

// ConnectionOpened records a new socket.
func (c *Collector) ConnectionOpened() { c.connections.Inc() }

// ConnectionClosed records a closed socket.
func (c *Collector) ConnectionClosed() { c.connections.Dec() }
