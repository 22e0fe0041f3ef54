// ABOUTME: Index mapping each agent ID to the set of connections subscribed to it
// ABOUTME: Entries are created lazily and deleted the moment their set empties

package gateway

import "sync"

// Subscriptions maps agent IDs to subscriber connection IDs. An agent ID is
// present if and only if it has at least one subscriber, which bounds memory
// to active interest only.
type Subscriptions struct {
	mu      sync.RWMutex
	byAgent map[string]map[string]struct{}
}

// NewSubscriptions creates an empty subscription index.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{byAgent: make(map[string]map[string]struct{})}
}

// Subscribe adds a connection to an agent's subscriber set. Idempotent.
func (s *Subscriptions) Subscribe(agentID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.byAgent[agentID]
	if !ok {
		set = make(map[string]struct{})
		s.byAgent[agentID] = set
	}
	set[connID] = struct{}{}
}

// Unsubscribe removes a connection from an agent's subscriber set and drops
// the agent's entry once the set is empty. Idempotent; unsubscribing a pair
// that was never subscribed is a no-op.
func (s *Subscriptions) Unsubscribe(agentID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.byAgent[agentID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.byAgent, agentID)
	}
}

// SubscribersOf returns a snapshot of the agent's subscriber connection IDs,
// safe to iterate while the index is mutated concurrently. Empty if none.
func (s *Subscriptions) SubscribersOf(agentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.byAgent[agentID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// CountFor returns the number of subscribers for an agent. Diagnostic accessor.
func (s *Subscriptions) CountFor(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAgent[agentID])
}

// hasAgent reports whether the agent has an entry at all. Test hook for the
// empty-set invariant.
func (s *Subscriptions) hasAgent(agentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byAgent[agentID]
	return ok
}
