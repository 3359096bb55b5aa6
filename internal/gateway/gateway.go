// ABOUTME: Gateway HTTP server that receives provider webhooks and serves health checks.
// ABOUTME: Manages server lifecycle, graceful shutdown, and the orchestrator sweeper.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/relay"
	"github.com/2389/coven-relay/internal/store"
)

// eventHandler is the slice of the orchestrator the gateway needs.
// This allows injecting mock implementations for testing.
type eventHandler interface {
	Handle(ctx context.Context, event relay.Event) relay.Outcome
	ActiveSessions() int
}

// Gateway is the HTTP ingress server. It parses provider webhooks into
// relay events, hands them to the orchestrator, and exposes health state.
type Gateway struct {
	config     *config.Config
	relay      eventHandler
	store      store.Store
	httpServer *http.Server
	logger     *slog.Logger
	startedAt  time.Time
}

// New creates a Gateway wired to the given orchestrator and outcome ledger.
func New(cfg *config.Config, handler eventHandler, s store.Store, logger *slog.Logger) *Gateway {
	g := &Gateway{
		config:    cfg,
		relay:     handler,
		store:     s,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleWebhook)
	mux.HandleFunc("/webhook", g.handleWebhook)
	mux.HandleFunc("/health", g.handleHealth)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
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

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, waiting for in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	return g.httpServer.Shutdown(ctx)
}

// healthResponse is the JSON body for GET /health.
type healthResponse struct {
	Status         string         `json:"status"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	ActiveSessions int            `json:"active_sessions"`
	Outcomes       map[string]int `json:"outcomes,omitempty"`
}

// handleHealth returns liveness plus session and ledger counters.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(g.startedAt).Seconds()),
		ActiveSessions: g.relay.ActiveSessions(),
	}

	if g.store != nil {
		counts, err := g.store.CountByState(r.Context())
		if err != nil {
			g.logger.Error("failed to count outcomes", "error", err)
		} else {
			resp.Outcomes = counts
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
