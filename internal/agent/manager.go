// ABOUTME: Manages live links to backing containers and routes client input to them
// ABOUTME: Central coordinator for agent connections on the ingest socket

package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAgentAlreadyLinked indicates a container link with the same agent ID is already connected.
var ErrAgentAlreadyLinked = errors.New("agent already linked")

// ErrAgentOffline indicates the agent's backing container has no live link.
var ErrAgentOffline = errors.New("agent offline")

// Transport sends one serialized frame to a backing container.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(data []byte) error
}

// Link is one live connection from a backing container.
type Link struct {
	AgentID   string
	transport Transport
}

// NewLink wraps a transport as a container link for the given agent.
func NewLink(agentID string, transport Transport) *Link {
	return &Link{AgentID: agentID, transport: transport}
}

// ContainerMessage is the gateway -> container frame format. Like the
// client protocol it is flat JSON with a type discriminant.
type ContainerMessage struct {
	Type      string          `json:"type"`
	UserID    string          `json:"userId,omitempty"`
	Content   string          `json:"content,omitempty"`
	Data      string          `json:"data,omitempty"`
	EventType string          `json:"eventType,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// InputFrame carries a client terminal/browser input event toward the
// container. Type is the inbound protocol discriminant it originated from.
type InputFrame struct {
	Type      string
	Data      string
	EventType string
	Payload   json.RawMessage
}

// Manager coordinates all connected container links.
type Manager struct {
	mu     sync.RWMutex
	links  map[string]*Link
	logger *slog.Logger
}

// NewManager creates a new Manager instance.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		links:  make(map[string]*Link),
		logger: logger,
	}
}

// Register adds a container link.
// Returns ErrAgentAlreadyLinked if a link for the same agent ID exists.
func (m *Manager) Register(link *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[link.AgentID]; exists {
		return ErrAgentAlreadyLinked
	}

	m.links[link.AgentID] = link
	m.logger.Info("agent linked", "agent_id", link.AgentID, "total_links", len(m.links))
	return nil
}

// Unregister removes a container link. Removing an unknown agent is a no-op.
func (m *Manager) Unregister(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[agentID]; exists {
		delete(m.links, agentID)
		m.logger.Info("agent unlinked", "agent_id", agentID, "total_links", len(m.links))
	}
}

// IsOnline reports whether the agent's container currently has a live link.
func (m *Manager) IsOnline(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.links[agentID]
	return ok
}

// Len returns the number of live container links. Diagnostic accessor.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.links)
}

// SendMessage forwards a user chat message to the agent's container.
func (m *Manager) SendMessage(agentID, userID, content string) error {
	return m.send(agentID, &ContainerMessage{
		Type:    "agent:message",
		UserID:  userID,
		Content: content,
	})
}

// SendInput forwards a terminal or browser input frame to the agent's container.
func (m *Manager) SendInput(agentID, userID string, frame InputFrame) error {
	return m.send(agentID, &ContainerMessage{
		Type:      frame.Type,
		UserID:    userID,
		Data:      frame.Data,
		EventType: frame.EventType,
		Payload:   frame.Payload,
	})
}

func (m *Manager) send(agentID string, msg *ContainerMessage) error {
	m.mu.RLock()
	link, ok := m.links[agentID]
	m.mu.RUnlock()
	if !ok {
		return ErrAgentOffline
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding container message: %w", err)
	}
	if err := link.transport.Send(data); err != nil {
		return fmt.Errorf("sending to agent %s: %w", agentID, err)
	}
	return nil
}
