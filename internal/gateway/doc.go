// Package gateway implements the Orbit real-time event gateway.
//
// # Overview
//
// Browser clients connect to /ws, authenticate in-band with a bearer token,
// and subscribe to the agents they own. Backing containers connect to
// /ws/agent with the shared agent key and stream raw agent events upward.
// The gateway translates those events into the closed client-facing
// vocabulary and fans each one out to the agent's current subscribers.
//
// # Shared state
//
// Two process-wide structures back every connection handler:
//
//   - Registry: connection ID -> authenticated Connection
//   - Subscriptions: agent ID -> set of subscriber connection IDs
//
// Both are mutex-guarded maps. Each WebSocket runs an independent read loop,
// so handlers execute concurrently against this shared state; the
// Subscriptions index hands out snapshots so broadcasts never iterate a map
// under mutation. There is no global gateway lock: a slow broadcast for one
// agent cannot stall sessions talking about another.
//
// # Delivery semantics
//
// Broadcast is best-effort and live-view only. Events are serialized once
// per broadcast, never queued for absent subscribers, and per-recipient
// failures (closed socket, full send buffer) are counted and dropped.
package gateway
