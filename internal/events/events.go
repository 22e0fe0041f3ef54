// ABOUTME: Client-facing wire vocabulary for the Orbit event gateway
// ABOUTME: Defines the outbound event variants and the inbound client protocol

package events

import "encoding/json"

// Outbound event type discriminants. The wire representation is flat JSON
// with a "type" field; the field set for each discriminant is fixed.
const (
	TypeConnected     = "connected"
	TypeAuthenticated = "authenticated"
	TypeSubscribed    = "subscribed"
	TypeUnsubscribed  = "unsubscribed"
	TypeMessageSent   = "message:sent"
	TypePong          = "pong"
	TypeError         = "error"

	TypeAgentStatus    = "agent:status"
	TypeAgentStarted   = "agent:started"
	TypeAgentThinking  = "agent:thinking"
	TypeAgentText      = "agent:text"
	TypeAgentTextDelta = "agent:text_delta"
	TypeAgentToolStart = "agent:tool_start"
	TypeAgentToolEnd   = "agent:tool_end"
	TypeAgentError     = "agent:error"
	TypeAgentComplete  = "agent:complete"
	TypeAgentHeartbeat = "agent:heartbeat"

	TypeWindowOpen   = "window:open"
	TypeWindowClose  = "window:close"
	TypeWindowFocus  = "window:focus"
	TypeWindowUpdate = "window:update"

	TypeBrowserNavigating = "browser:navigating"
	TypeBrowserNavigated  = "browser:navigated"
	TypeBrowserScreenshot = "browser:screenshot"
	TypeBrowserSnapshot   = "browser:snapshot"
	TypeBrowserAction     = "browser:action"

	TypeTerminalCommand = "terminal:command"
	TypeTerminalOutput  = "terminal:output"
	TypeTerminalExit    = "terminal:exit"

	TypeFSRead  = "fs:read"
	TypeFSWrite = "fs:write"
	TypeFSEdit  = "fs:edit"
)

// Inbound event type discriminants (client -> gateway).
const (
	InboundAuth          = "auth"
	InboundPing          = "ping"
	InboundSubscribe     = "subscribe"
	InboundUnsubscribe   = "unsubscribe"
	InboundAgentMessage  = "agent:message"
	InboundTerminalInput = "terminal:input"
	InboundBrowserInput  = "browser:input"
)

// WindowBounds describes window geometry reported by the desktop compositor
// inside a backing container.
type WindowBounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Outbound is one gateway -> client event. It is a sum type over the
// discriminants above, flattened into a single struct: every variant-specific
// field carries omitempty so the serialized form only contains the fields
// declared for its discriminant.
type Outbound struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId,omitempty"`

	// connected
	ConnectionID string `json:"connectionId,omitempty"`

	// authenticated
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// agent:status, agent:heartbeat
	Status string   `json:"status,omitempty"`
	Uptime *float64 `json:"uptime,omitempty"`

	// agent:thinking, agent:text, agent:text_delta, agent:complete, agent:message
	Content string `json:"content,omitempty"`

	// agent:tool_start, agent:tool_end
	Tool    string          `json:"tool,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	CallID  string          `json:"callId,omitempty"`
	Success *bool           `json:"success,omitempty"`

	// agent:error
	Error string `json:"error,omitempty"`

	// window:*
	WindowID string        `json:"windowId,omitempty"`
	Title    string        `json:"title,omitempty"`
	App      string        `json:"app,omitempty"`
	Bounds   *WindowBounds `json:"bounds,omitempty"`

	// browser:*
	URL      string          `json:"url,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Action   json.RawMessage `json:"action,omitempty"`

	// terminal:*, browser:screenshot, fs:* payloads
	Command  string `json:"command,omitempty"`
	Data     string `json:"data,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Inbound is one client -> gateway protocol message.
type Inbound struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	AgentID   string          `json:"agentId,omitempty"`
	Content   string          `json:"content,omitempty"`
	Data      string          `json:"data,omitempty"`
	EventType string          `json:"eventType,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Connected is the first event sent on every new transport, before auth.
func Connected(connectionID string) *Outbound {
	return &Outbound{Type: TypeConnected, ConnectionID: connectionID}
}

// Authenticated acknowledges a successful auth message.
func Authenticated(userID, username string) *Outbound {
	return &Outbound{Type: TypeAuthenticated, UserID: userID, Username: username}
}

// Subscribed acknowledges a subscribe message.
func Subscribed(agentID string) *Outbound {
	return &Outbound{Type: TypeSubscribed, AgentID: agentID}
}

// Unsubscribed acknowledges an unsubscribe message.
func Unsubscribed(agentID string) *Outbound {
	return &Outbound{Type: TypeUnsubscribed, AgentID: agentID}
}

// MessageSent acknowledges a forwarded agent:message.
func MessageSent(agentID string) *Outbound {
	return &Outbound{Type: TypeMessageSent, AgentID: agentID}
}

// Pong answers a ping.
func Pong() *Outbound {
	return &Outbound{Type: TypePong}
}

// Errorf builds a protocol error reply.
func Errorf(message string) *Outbound {
	return &Outbound{Type: TypeError, Message: message}
}

// AgentStatus reports an agent's current status to one client.
func AgentStatus(agentID, status string) *Outbound {
	return &Outbound{Type: TypeAgentStatus, AgentID: agentID, Status: status}
}
