// ABOUTME: Prometheus metrics for the event gateway
// ABOUTME: Tracks live connections, per-agent subscribers, and broadcast outcomes

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's operational instruments.
type Metrics struct {
	Connections        prometheus.Gauge
	Subscribers        *prometheus.GaugeVec
	AgentLinks         prometheus.Gauge
	EventsBroadcast    prometheus.Counter
	EventsDropped      prometheus.Counter
	UnknownAgentEvents prometheus.Counter
	DuplicateEvents    prometheus.Counter
}

// NewMetrics registers the gateway instruments on the given registerer.
// Tests pass a fresh prometheus.NewRegistry() to keep state isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbit_gateway_connections",
			Help: "Number of live, authenticated client connections.",
		}),
		Subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orbit_gateway_subscribers",
			Help: "Number of connections subscribed to each agent.",
		}, []string{"agent_id"}),
		AgentLinks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orbit_gateway_agent_links",
			Help: "Number of live backing-container links.",
		}),
		EventsBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Name: "orbit_gateway_events_broadcast_total",
			Help: "Outbound events handed to the broadcaster with at least one subscriber.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "orbit_gateway_events_dropped_total",
			Help: "Per-recipient deliveries that failed and were discarded.",
		}),
		UnknownAgentEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "orbit_gateway_unknown_agent_events_total",
			Help: "Agent-origin events with no mapping in the outbound vocabulary.",
		}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "orbit_gateway_duplicate_agent_events_total",
			Help: "Agent-origin events dropped by the re-delivery dedupe cache.",
		}),
	}
}
