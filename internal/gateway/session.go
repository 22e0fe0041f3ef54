// ABOUTME: Per-connection protocol state machine for client sessions
// ABOUTME: Handles auth, subscribe/unsubscribe, message forwarding, and cleanup

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/orbitdesk/orbit-gateway/internal/agent"
	"github.com/orbitdesk/orbit-gateway/internal/auth"
	"github.com/orbitdesk/orbit-gateway/internal/events"
	"github.com/orbitdesk/orbit-gateway/internal/store"
)

// UserDirectory resolves authenticated user IDs to user records.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// AgentDirectory performs the per-subscribe ownership check. A missing agent
// and a foreign agent are both ErrNotFound.
type AgentDirectory interface {
	GetAgent(ctx context.Context, agentID, userID string) (*store.Agent, error)
}

// MessageSender forwards client input toward an agent's backing container.
type MessageSender interface {
	SendMessage(agentID, userID, content string) error
	SendInput(agentID, userID string, frame agent.InputFrame) error
}

// SessionDeps bundles the shared state and external collaborators a session
// operates against. Shared structures are dependency-injected so tests get
// fresh state per session.
type SessionDeps struct {
	Registry *Registry
	Subs     *Subscriptions
	Verifier auth.TokenVerifier
	Users    UserDirectory
	Agents   AgentDirectory
	Sender   MessageSender
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Session handles one client connection's inbound message stream. A session
// starts Unauthenticated and becomes Authenticated after a valid auth
// message; being subscribed to agents is a property of the registered
// Connection, not a distinct state.
type Session struct {
	deps      SessionDeps
	id        string
	transport Conn
	logger    *slog.Logger

	// conn is nil until authentication succeeds. Only the session's own
	// handler goroutine writes it.
	conn *Connection

	closeOnce sync.Once
}

// NewSession creates a session for a freshly opened transport and announces
// the generated connection ID to the client.
func NewSession(deps SessionDeps, transport Conn) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Session{
		deps:      deps,
		id:        uuid.New().String(),
		transport: transport,
	}
	s.logger = deps.Logger.With("component", "session", "connection_id", s.id)
	s.reply(events.Connected(s.id))
	return s
}

// ID returns the session's generated connection identifier.
func (s *Session) ID() string {
	return s.id
}

// HandleMessage processes one inbound frame. Every failure becomes a
// protocol error reply on this connection; nothing escapes to the caller.
func (s *Session) HandleMessage(ctx context.Context, data []byte) {
	var msg events.Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(events.Errorf("Invalid message format"))
		return
	}

	switch msg.Type {
	case events.InboundPing:
		s.reply(events.Pong())
	case events.InboundAuth:
		s.handleAuth(ctx, &msg)
	case events.InboundSubscribe:
		s.authenticated(func() { s.handleSubscribe(ctx, &msg) })
	case events.InboundUnsubscribe:
		s.authenticated(func() { s.handleUnsubscribe(&msg) })
	case events.InboundAgentMessage:
		s.authenticated(func() { s.handleAgentMessage(&msg) })
	case events.InboundTerminalInput, events.InboundBrowserInput:
		s.authenticated(func() { s.handleInput(&msg) })
	default:
		if s.conn == nil {
			s.reply(events.Errorf("Not authenticated"))
			return
		}
		s.reply(events.Errorf("Unknown event type"))
	}
}

// authenticated runs fn only when the session has completed auth.
func (s *Session) authenticated(fn func()) {
	if s.conn == nil {
		s.reply(events.Errorf("Not authenticated"))
		return
	}
	fn()
}

func (s *Session) handleAuth(ctx context.Context, msg *events.Inbound) {
	if s.conn != nil {
		s.reply(events.Errorf("Already authenticated"))
		return
	}

	userID, err := s.deps.Verifier.Verify(msg.Token)
	if err != nil {
		s.logger.Debug("token verification failed", "error", err)
		s.reply(events.Errorf("Invalid token"))
		return
	}

	user, err := s.deps.Users.GetUser(ctx, userID)
	if err != nil {
		s.logger.Debug("user lookup failed", "user_id", userID, "error", err)
		s.reply(events.Errorf("User not found"))
		return
	}

	conn, err := s.deps.Registry.Register(s.id, user.ID, s.transport)
	if err != nil {
		s.logger.Error("connection registration failed", "error", err)
		s.reply(events.Errorf("Internal error"))
		return
	}
	s.conn = conn
	s.deps.Metrics.Connections.Inc()

	s.logger.Info("client authenticated", "user_id", user.ID, "username", user.Username)
	s.reply(events.Authenticated(user.ID, user.Username))
}

func (s *Session) handleSubscribe(ctx context.Context, msg *events.Inbound) {
	if msg.AgentID == "" {
		s.reply(events.Errorf("agentId is required"))
		return
	}

	// Ownership is re-checked on every subscribe; revoked access takes
	// effect on the next attempt rather than at some cache expiry.
	ag, err := s.deps.Agents.GetAgent(ctx, msg.AgentID, s.conn.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("agent lookup failed", "agent_id", msg.AgentID, "error", err)
		}
		s.reply(events.Errorf("Agent not found or access denied"))
		return
	}

	s.conn.addSubscription(ag.ID)
	s.deps.Subs.Subscribe(ag.ID, s.id)
	s.updateSubscriberGauge(ag.ID)

	status := ag.Status
	if status == "" {
		status = "unknown"
	}

	s.reply(events.Subscribed(ag.ID))
	s.reply(events.AgentStatus(ag.ID, status))
}

func (s *Session) handleUnsubscribe(msg *events.Inbound) {
	if msg.AgentID == "" {
		s.reply(events.Errorf("agentId is required"))
		return
	}

	s.conn.removeSubscription(msg.AgentID)
	s.deps.Subs.Unsubscribe(msg.AgentID, s.id)
	s.updateSubscriberGauge(msg.AgentID)

	s.reply(events.Unsubscribed(msg.AgentID))
}

func (s *Session) handleAgentMessage(msg *events.Inbound) {
	if !s.conn.isSubscribed(msg.AgentID) {
		s.reply(events.Errorf("Not subscribed"))
		return
	}

	if err := s.deps.Sender.SendMessage(msg.AgentID, s.conn.UserID, msg.Content); err != nil {
		s.reply(events.Errorf(err.Error()))
		return
	}
	s.reply(events.MessageSent(msg.AgentID))
}

func (s *Session) handleInput(msg *events.Inbound) {
	if !s.conn.isSubscribed(msg.AgentID) {
		s.reply(events.Errorf("Not subscribed"))
		return
	}

	frame := agent.InputFrame{
		Type:      msg.Type,
		Data:      msg.Data,
		EventType: msg.EventType,
		Payload:   msg.Payload,
	}
	if err := s.deps.Sender.SendInput(msg.AgentID, s.conn.UserID, frame); err != nil {
		s.reply(events.Errorf(err.Error()))
	}
}

// Close tears the session down: the connection leaves the registry and every
// subscription it held is removed from the index. Runs exactly once no
// matter how the transport closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.conn == nil {
			return
		}

		agentIDs := s.deps.Registry.Remove(s.id)
		for _, agentID := range agentIDs {
			s.deps.Subs.Unsubscribe(agentID, s.id)
			s.updateSubscriberGauge(agentID)
		}
		s.deps.Metrics.Connections.Dec()

		s.logger.Info("client disconnected", "user_id", s.conn.UserID, "subscriptions", len(agentIDs))
	})
}

func (s *Session) updateSubscriberGauge(agentID string) {
	count := s.deps.Subs.CountFor(agentID)
	if count == 0 {
		s.deps.Metrics.Subscribers.DeleteLabelValues(agentID)
		return
	}
	s.deps.Metrics.Subscribers.WithLabelValues(agentID).Set(float64(count))
}

// reply sends one protocol event to this client, best-effort. A send failure
// means the transport is already gone; the close path handles cleanup.
func (s *Session) reply(ev *events.Outbound) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode reply", "type", ev.Type, "error", err)
		return
	}
	if err := s.transport.Send(data); err != nil {
		s.logger.Debug("reply send failed", "type", ev.Type)
	}
}
