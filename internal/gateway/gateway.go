// ABOUTME: Gateway orchestrator wiring registry, index, broadcaster, and HTTP server
// ABOUTME: Manages the client socket, the agent ingest socket, and health endpoints

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbitdesk/orbit-gateway/internal/agent"
	"github.com/orbitdesk/orbit-gateway/internal/auth"
	"github.com/orbitdesk/orbit-gateway/internal/config"
	"github.com/orbitdesk/orbit-gateway/internal/dedupe"
	"github.com/orbitdesk/orbit-gateway/internal/store"
)

const (
	defaultDedupeTTL    = 5 * time.Minute
	dedupeMaxSize       = 100_000
	readHeaderTimeout   = 10 * time.Second
	shutdownGracePeriod = 5 * time.Second
	defaultMetricsPath  = "/metrics"
)

// Gateway is the real-time event gateway server. It owns the shared mutable
// state (connection registry, subscription index) and the HTTP server
// exposing the client and agent WebSocket endpoints.
type Gateway struct {
	config   *config.Config
	store    store.Store
	verifier *auth.JWTVerifier
	agentKey string

	registry    *Registry
	subs        *Subscriptions
	broadcaster *Broadcaster
	agents      *agent.Manager
	ingest      *Ingest
	dedupe      *dedupe.Cache
	metrics     *Metrics

	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New creates a Gateway from configuration. The store is opened here and
// owned by the gateway for its lifetime.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	g := newWithDeps(cfg, s, verifier, promRegistry, logger)
	g.buildMux(promRegistry)
	return g, nil
}

// newWithDeps wires the gateway's components. Split from New so tests can
// inject an in-memory store and a fresh prometheus registry.
func newWithDeps(cfg *config.Config, s store.Store, verifier *auth.JWTVerifier, promRegistry *prometheus.Registry, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	dedupeTTL := cfg.Agents.EventDedupeTTL
	if dedupeTTL == 0 {
		dedupeTTL = defaultDedupeTTL
	}

	metrics := NewMetrics(promRegistry)
	registry := NewRegistry()
	subs := NewSubscriptions()
	broadcaster := NewBroadcaster(registry, subs, metrics, logger)
	agents := agent.NewManager(logger.With("component", "agent-manager"))
	cache := dedupe.New(dedupeTTL, dedupeMaxSize)

	return &Gateway{
		config:      cfg,
		store:       s,
		verifier:    verifier,
		agentKey:    cfg.Auth.AgentKey,
		registry:    registry,
		subs:        subs,
		broadcaster: broadcaster,
		agents:      agents,
		ingest:      NewIngest(cache, s, broadcaster, metrics, logger),
		dedupe:      cache,
		metrics:     metrics,
		logger:      logger.With("component", "gateway"),
	}
}

// sessionDeps bundles shared state for a new client session.
func (g *Gateway) sessionDeps() SessionDeps {
	return SessionDeps{
		Registry: g.registry,
		Subs:     g.subs,
		Verifier: g.verifier,
		Users:    g.store,
		Agents:   g.store,
		Sender:   g.agents,
		Metrics:  g.metrics,
		Logger:   g.logger,
	}
}

func (g *Gateway) buildMux(promRegistry *prometheus.Registry) {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", g.handleClientWS)
	mux.HandleFunc("/ws/agent", g.handleAgentWS)

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	mux.Handle("/api/agents", g.requireBearer(http.HandlerFunc(g.handleListAgents)))

	if g.config.Metrics.Enabled {
		path := g.config.Metrics.Path
		if path == "" {
			path = defaultMetricsPath
		}
		mux.Handle(path, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	g.handler = mux
	g.httpServer = &http.Server{
		Addr:              g.config.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Handler exposes the gateway's HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases gateway resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.dedupe.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness with live connection and link counts.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections, %d agent links)", g.registry.Len(), g.agents.Len())
}
