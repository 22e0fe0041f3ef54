// ABOUTME: Best-effort fan-out of outbound events to an agent's subscribers
// ABOUTME: Serializes once per event; per-recipient failures never propagate

package gateway

import (
	"encoding/json"
	"log/slog"

	"github.com/orbitdesk/orbit-gateway/internal/events"
)

// Broadcaster delivers outbound events to every live subscriber of an agent.
// Delivery is live-view only: no buffering, no acknowledgment, no retries.
type Broadcaster struct {
	registry *Registry
	subs     *Subscriptions
	metrics  *Metrics
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry and index.
func NewBroadcaster(registry *Registry, subs *Subscriptions, metrics *Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		subs:     subs,
		metrics:  metrics,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Broadcast sends ev to all current subscribers of agentID. Agents with no
// live viewers are the common case, handled before serialization. A
// subscriber listed in the index but already gone from the registry, or
// whose transport rejects the write, is skipped; one bad recipient never
// blocks the others and nothing is raised to the caller.
func (b *Broadcaster) Broadcast(agentID string, ev *events.Outbound) {
	ids := b.subs.SubscribersOf(agentID)
	if len(ids) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to encode outbound event", "type", ev.Type, "agent_id", agentID, "error", err)
		return
	}

	b.metrics.EventsBroadcast.Inc()
	for _, id := range ids {
		conn, ok := b.registry.Lookup(id)
		if !ok {
			// Unsubscribed or closed between snapshot and delivery.
			continue
		}
		if err := conn.Send(data); err != nil {
			b.metrics.EventsDropped.Inc()
			b.logger.Debug("dropped event for unreachable subscriber",
				"connection_id", id, "agent_id", agentID, "type", ev.Type)
		}
	}
}
