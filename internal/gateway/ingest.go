// ABOUTME: Agent-origin event ingest: dedupe, heartbeat hook, translate, broadcast
// ABOUTME: Serves the container-facing WebSocket endpoint

package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitdesk/orbit-gateway/internal/agent"
	"github.com/orbitdesk/orbit-gateway/internal/dedupe"
	"github.com/orbitdesk/orbit-gateway/internal/events"
	"github.com/orbitdesk/orbit-gateway/internal/store"
)

// HeartbeatRecorder persists agent liveness timestamps. Satisfied by the store.
type HeartbeatRecorder interface {
	UpdateAgentHeartbeat(ctx context.Context, agentID string) error
}

// Ingest is the pipeline for raw agent-origin events: drop re-deliveries,
// run the heartbeat side effect, translate, fan out. It is separate from the
// transport so the pipeline is testable without sockets.
type Ingest struct {
	dedupe      *dedupe.Cache
	heartbeats  HeartbeatRecorder
	broadcaster *Broadcaster
	metrics     *Metrics
	logger      *slog.Logger
}

// NewIngest creates the agent event pipeline.
func NewIngest(cache *dedupe.Cache, heartbeats HeartbeatRecorder, broadcaster *Broadcaster, metrics *Metrics, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{
		dedupe:      cache,
		heartbeats:  heartbeats,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With("component", "ingest"),
	}
}

// HandleEvent processes one raw event from agentID's container. Unknown
// discriminants and duplicates are dropped silently; nothing here ever
// fails the container's connection.
func (i *Ingest) HandleEvent(ctx context.Context, agentID string, ev events.AgentEvent) {
	if ev.ID != "" && i.dedupe.CheckAndMark(agentID+"|"+ev.ID) {
		i.metrics.DuplicateEvents.Inc()
		return
	}

	// Heartbeats update liveness before broadcast. This is the one
	// discriminant with a side effect beyond translation.
	if ev.Type == events.TypeAgentHeartbeat {
		if err := i.heartbeats.UpdateAgentHeartbeat(ctx, agentID); err != nil && !errors.Is(err, store.ErrNotFound) {
			i.logger.Warn("heartbeat update failed", "agent_id", agentID, "error", err)
		}
	}

	out, ok := events.Translate(agentID, ev)
	if !ok {
		i.metrics.UnknownAgentEvents.Inc()
		i.logger.Debug("unrecognized agent event", "agent_id", agentID, "type", ev.Type)
		return
	}

	i.broadcaster.Broadcast(agentID, out)
}

// handleAgentWS upgrades a backing container's connection on the ingest
// socket, authenticated by the shared agent key. Inbound frames are raw
// agent events; the link also carries forwarded client input back down.
func (g *Gateway) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-Agent-Key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(g.agentKey)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("agent upgrade failed", "agent_id", agentID, "error", err)
		return
	}

	conn := newWSConn(ws)
	link := agent.NewLink(agentID, conn)
	if err := g.agents.Register(link); err != nil {
		g.logger.Warn("rejecting duplicate agent link", "agent_id", agentID)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "agent already linked"),
			time.Now().Add(writeWait))
		conn.close()
		return
	}
	g.metrics.AgentLinks.Inc()

	defer func() {
		g.agents.Unregister(agentID)
		g.metrics.AgentLinks.Dec()
		conn.close()
	}()

	ws.SetReadLimit(maxMessageSize)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var ev events.AgentEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			g.logger.Debug("malformed agent event", "agent_id", agentID, "error", err)
			continue
		}
		g.ingest.HandleEvent(r.Context(), agentID, ev)
	}
}
