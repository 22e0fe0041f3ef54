// ABOUTME: Authenticated HTTP API for the desktop shell
// ABOUTME: Bearer-token middleware plus the agent listing endpoint

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type userIDKey struct{}

// requireBearer verifies the Authorization header and stashes the user ID in
// the request context. The WebSocket protocol authenticates in-band instead;
// this middleware only guards the plain HTTP surface.
func (g *Gateway) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, prefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		userID, err := g.verifier.Verify(strings.TrimPrefix(authz, prefix))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// agentResponse is the JSON shape for one agent in the listing.
type agentResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Online        bool       `json:"online"`
	Subscribers   int        `json:"subscribers"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
}

// handleListAgents returns the caller's agents with live link and
// subscription information.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := userIDFrom(r.Context())
	agents, err := g.store.ListAgentsForUser(r.Context(), userID)
	if err != nil {
		g.logger.Error("listing agents failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentResponse{
			ID:            a.ID,
			Name:          a.Name,
			Status:        a.Status,
			Online:        g.agents.IsOnline(a.ID),
			Subscribers:   g.subs.CountFor(a.ID),
			LastHeartbeat: a.LastHeartbeat,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"agents": out}); err != nil {
		g.logger.Debug("encoding agent list failed", "error", err)
	}
}
