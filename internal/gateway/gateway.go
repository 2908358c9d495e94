// ABOUTME: Gateway orchestrator wiring store, signer, collaborators, and servers.
// ABOUTME: Owns startup, the health/metrics HTTP server, and graceful shutdown.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webizen/access-gateway/internal/access"
	"github.com/webizen/access-gateway/internal/adp"
	"github.com/webizen/access-gateway/internal/audit"
	"github.com/webizen/access-gateway/internal/auth"
	"github.com/webizen/access-gateway/internal/config"
	"github.com/webizen/access-gateway/internal/ledger"
	"github.com/webizen/access-gateway/internal/server"
	"github.com/webizen/access-gateway/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Gateway orchestrates the access-gateway server components: the SQLite
// store, the websocket server, and the HTTP health/metrics server.
type Gateway struct {
	config     *config.Config
	store      store.Store
	wsServer   *server.Server
	signatures *auth.SignatureVerifier
	httpServer *http.Server
	registry   *prometheus.Registry
	logger     *slog.Logger
}

// New builds a gateway from configuration. All collaborators are
// constructed here and injected downward; nothing global is touched.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	signer, err := initSigner(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	recorder := audit.NewRecorder(signer, st, logger.With("component", "audit"))

	client, tokens := initLedger(cfg, logger)
	payments := ledger.NewPaymentEngine(
		client,
		cfg.Access.MaxPaymentRetries,
		cfg.Access.PaymentRetryDelay,
		logger.With("component", "payments"),
	)

	controller := access.NewController(st, tokens, client, payments, recorder, access.Config{
		BalanceThreshold: cfg.Access.BalanceThreshold,
		PaymentAmount:    cfg.Access.PaymentAmount,
	}, logger.With("component", "access"))

	domains := adp.NewVerifier(
		nil, // system DNS resolver
		st,
		cfg.ADP.MaxRetries,
		cfg.ADP.InitialBackoff,
		logger.With("component", "adp"),
	)

	signatures := auth.NewSignatureVerifier()
	admin := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	registry := prometheus.NewRegistry()
	metrics := server.NewMetrics(registry)
	payments.SetAttemptCounter(metrics.PaymentAttempts)

	wsServer := server.NewServer(controller, recorder, domains, signatures, admin, st, st, metrics, server.Options{
		RateLimitWindow: cfg.RateLimit.Window,
		RateLimitMax:    cfg.RateLimit.MaxRequests,
	}, logger)

	g := &Gateway{
		config:     cfg,
		store:      st,
		wsServer:   wsServer,
		signatures: signatures,
		registry:   registry,
		logger:     logger.With("component", "gateway"),
	}
	return g, nil
}

// initSigner builds the audit signer from the configured seed, or
// generates an ephemeral one. Ephemeral keys make audit entries
// unverifiable across restarts, so that path warns loudly.
func initSigner(cfg *config.Config, logger *slog.Logger) (*audit.Ed25519Signer, error) {
	if cfg.Auth.AuditSigningSeed != "" {
		signer, err := audit.NewEd25519SignerFromBase64(cfg.Auth.AuditSigningSeed)
		if err != nil {
			return nil, fmt.Errorf("parsing audit signing seed: %w", err)
		}
		return signer, nil
	}

	signer, err := audit.GenerateEd25519Signer()
	if err != nil {
		return nil, fmt.Errorf("generating audit signing key: %w", err)
	}
	logger.Warn("no audit_signing_seed configured, generated an ephemeral audit key")
	return signer, nil
}

// initLedger builds the payment collaborators. Without a base URL the
// payment path stays unconfigured and fails as collaborator-unavailable.
func initLedger(cfg *config.Config, logger *slog.Logger) (ledger.LedgerClient, ledger.TokenValidator) {
	if cfg.Ledger.BaseURL == "" {
		logger.Warn("no ledger.base_url configured, balance-gated grants will be unavailable")
		u := unconfiguredLedger{}
		return u, u
	}
	httpClient := ledger.NewHTTPClient(cfg.Ledger.BaseURL, cfg.Ledger.Timeout, logger)
	return ledger.NewBreakerClient(httpClient, 30*time.Second, logger.With("component", "ledger")), httpClient
}

// Run starts the servers and blocks until ctx is cancelled or a server
// fails, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	wsLn, err := net.Listen("tcp", g.config.Server.WSAddr)
	if err != nil {
		return fmt.Errorf("websocket listener: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- g.wsServer.Serve(wsLn) }()

	if g.config.Server.HTTPAddr != "" {
		httpLn, err := net.Listen("tcp", g.config.Server.HTTPAddr)
		if err != nil {
			_ = wsLn.Close()
			return fmt.Errorf("http listener: %w", err)
		}
		g.httpServer = &http.Server{
			Handler:           g.httpHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.logger.Info("http server listening", "addr", httpLn.Addr().String())
		go func() {
			if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			} else {
				errCh <- nil
			}
		}()
	}

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case serverErr = <-errCh:
		if serverErr != nil {
			g.logger.Error("server failed", "error", serverErr)
		}
	}

	shutdownErr := g.shutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// shutdown stops the servers and releases resources. Uses a fresh context
// because the run context is already cancelled by this point.
func (g *Gateway) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := g.wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	g.signatures.Close()
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) == 0 {
		g.logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}

// httpHandler serves the HTTP health endpoint and, when enabled, the
// Prometheus metrics endpoint.
func (g *Gateway) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	if g.config.Metrics.Enabled {
		path := g.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{"api": "ok", "store": "ok"}
	if err := g.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["store"] = "degraded"
		g.logger.Warn("health check: store unreachable", "error", err)
	}
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	body["responseTime"] = time.Since(start).Milliseconds()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// unconfiguredLedger satisfies the ledger interfaces when no ledger
// service is configured.
type unconfiguredLedger struct{}

func (unconfiguredLedger) Balance(context.Context, string) (int64, error) {
	return 0, fmt.Errorf("%w: ledger not configured", ledger.ErrUnavailable)
}

func (unconfiguredLedger) Pay(context.Context, string, int64) (*ledger.Receipt, error) {
	return nil, fmt.Errorf("%w: ledger not configured", ledger.ErrUnavailable)
}

func (unconfiguredLedger) ValidateToken(context.Context, string) (bool, error) {
	return false, fmt.Errorf("%w: ledger not configured", ledger.ErrUnavailable)
}
