// ABOUTME: Registry of live, authenticated client connections
// ABOUTME: Owns Connection records and their subscription sets

package gateway

import (
	"errors"
	"sync"
)

// ErrDuplicateConnection indicates a connection ID is already registered.
// Connection IDs are generated server-side, so this should not occur.
var ErrDuplicateConnection = errors.New("connection already registered")

// Conn is the transport handle for one client connection. The registry and
// broadcaster only ever push serialized bytes through it. Implementations
// must be safe for concurrent use and must return an error rather than block
// once the underlying transport is gone.
type Conn interface {
	Send(data []byte) error
}

// Connection is one authenticated client session. The registry exclusively
// owns each record; connections never share state.
type Connection struct {
	ID     string
	UserID string

	transport Conn

	mu   sync.Mutex
	subs map[string]struct{} // agent IDs this connection is subscribed to
}

// Send pushes serialized bytes to the client, best-effort.
func (c *Connection) Send(data []byte) error {
	return c.transport.Send(data)
}

func (c *Connection) addSubscription(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[agentID] = struct{}{}
}

func (c *Connection) removeSubscription(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, agentID)
}

func (c *Connection) isSubscribed(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[agentID]
	return ok
}

// subscriptions returns a snapshot of the connection's subscribed agent IDs.
func (c *Connection) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	return out
}

// Registry tracks authenticated connections by connection ID. Pre-auth
// connections are not registered; they exist only as a session holding
// their generated ID until the auth handshake succeeds.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register creates and stores a Connection for an authenticated session.
// The caller guarantees id is freshly generated; a collision returns
// ErrDuplicateConnection.
func (r *Registry) Register(id, userID string, transport Conn) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return nil, ErrDuplicateConnection
	}

	conn := &Connection{
		ID:        id,
		UserID:    userID,
		transport: transport,
		subs:      make(map[string]struct{}),
	}
	r.conns[id] = conn
	return conn, nil
}

// Lookup returns the connection with the given ID, if registered.
func (r *Registry) Lookup(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Remove deletes the connection and returns the agent IDs it was subscribed
// to, so the caller can drive subscription index cleanup. Removing an
// unknown ID is a no-op returning an empty set.
func (r *Registry) Remove(id string) []string {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.subscriptions()
}

// Len returns the number of registered connections. Diagnostic accessor.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
