// ABOUTME: WebSocket gateway server: session table, request pipeline, dispatch.
// ABOUTME: One reader goroutine per connection, sequential processing per session.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/webizen/access-gateway/internal/access"
	"github.com/webizen/access-gateway/internal/adp"
	"github.com/webizen/access-gateway/internal/audit"
	"github.com/webizen/access-gateway/internal/auth"
	"github.com/webizen/access-gateway/internal/ratelimit"
	"github.com/webizen/access-gateway/internal/store"
)

// Pinger is the liveness surface the health endpoint reports on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the server's tunable pipeline parameters.
// Non-positive values fall back to the ratelimit defaults.
type Options struct {
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// Server accepts websocket connections and runs each message through the
// pipeline: rate check, parse, signature verification, dispatch. Every
// collaborator is injected; the server owns only session state.
type Server struct {
	controller *access.Controller
	recorder   *audit.Recorder
	domains    *adp.Verifier
	signatures *auth.SignatureVerifier
	admin      auth.AdminVerifier
	keys       store.KeyStore
	health     Pinger
	metrics    *Metrics
	logger     *slog.Logger

	rlWindow time.Duration
	rlMax    int

	upgrader websocket.Upgrader
	handlers map[string]handlerFunc

	mu       sync.Mutex
	sessions map[string]*Session

	httpServer *http.Server
}

// NewServer wires the gateway server from its collaborators.
func NewServer(
	controller *access.Controller,
	recorder *audit.Recorder,
	domains *adp.Verifier,
	signatures *auth.SignatureVerifier,
	admin auth.AdminVerifier,
	keys store.KeyStore,
	health Pinger,
	metrics *Metrics,
	opts Options,
	logger *slog.Logger,
) *Server {
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = ratelimit.DefaultWindow
	}
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = ratelimit.DefaultMaxRequests
	}

	s := &Server{
		controller: controller,
		recorder:   recorder,
		domains:    domains,
		signatures: signatures,
		admin:      admin,
		keys:       keys,
		health:     health,
		metrics:    metrics,
		logger:     logger.With("component", "server"),
		rlWindow:   opts.RateLimitWindow,
		rlMax:      opts.RateLimitMax,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[string]*Session),
	}
	s.registerHandlers()
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start listens on addr and serves websocket connections until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket listener: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts websocket connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("websocket server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and cancels in-flight sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.cancel()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.serveConn(conn)
}

// serveConn owns one connection for its lifetime. The reader runs in its
// own goroutine so a disconnect cancels the session context immediately,
// even while a handler is mid-retry. Processing stays sequential in
// arrival order, and only this goroutine writes to the connection.
func (s *Server) serveConn(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := newSession(s.rlWindow, s.rlMax, cancel)
	s.addSession(sess)

	logger := s.logger.With("session_id", sess.ID)
	logger.Info("client connected", "remote", conn.RemoteAddr().String())

	defer func() {
		s.removeSession(sess)
		_ = conn.Close()
		logger.Info("client disconnected")
	}()

	msgs := make(chan []byte)
	go func() {
		defer close(msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("connection read failed", "error", err)
				}
				cancel()
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range msgs {
		resp := s.process(ctx, sess, data)
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("connection write failed", "error", err)
			return
		}
	}
}

// process runs one message through the pipeline and always produces a
// response. Malformed messages are answered, never fatal to the session.
func (s *Server) process(ctx context.Context, sess *Session, data []byte) Response {
	if !sess.limiter.Allow() {
		s.metrics.RateLimited.Inc()
		s.metrics.Requests.WithLabelValues("", "rate_limited").Inc()
		return Response{Error: "Rate limit exceeded"}
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.metrics.Requests.WithLabelValues("", "invalid").Inc()
		return Response{Error: "Invalid request: malformed JSON"}
	}
	if env.Endpoint == "" {
		s.metrics.Requests.WithLabelValues("", "invalid").Inc()
		return Response{Error: "Invalid request: endpoint is required"}
	}

	canonical, err := CanonicalMessage(env.Endpoint, env.Payload)
	if err != nil {
		s.metrics.Requests.WithLabelValues(env.Endpoint, "invalid").Inc()
		return Response{Error: errorMessage(err)}
	}
	fingerprint, err := s.signatures.Verify(env.Pubkey, canonical, env.Signature)
	if err != nil {
		s.metrics.Requests.WithLabelValues(env.Endpoint, "signature_invalid").Inc()
		s.logger.Info("rejected unsigned or mis-signed message",
			"session_id", sess.ID,
			"endpoint", env.Endpoint,
		)
		return Response{Error: "Signature verification failed"}
	}

	handler, ok := s.handlers[env.Endpoint]
	if !ok {
		s.metrics.Requests.WithLabelValues(env.Endpoint, "unknown_endpoint").Inc()
		return Response{Error: fmt.Sprintf("Unknown endpoint: %s", env.Endpoint)}
	}

	start := time.Now()
	payload, err := handler(ctx, fingerprint, env.Payload)
	s.metrics.RequestDuration.WithLabelValues(env.Endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.Requests.WithLabelValues(env.Endpoint, "error").Inc()
		s.logger.Info("request failed",
			"session_id", sess.ID,
			"endpoint", env.Endpoint,
			"error", err,
		)
		return Response{Error: errorMessage(err)}
	}

	s.metrics.Requests.WithLabelValues(env.Endpoint, "ok").Inc()
	return Response{Endpoint: env.Endpoint, Payload: payload}
}

// errorMessage maps pipeline and handler errors onto the wire error
// strings clients match on.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		detail := strings.TrimPrefix(err.Error(), ErrInvalidRequest.Error()+": ")
		return "Invalid request: " + detail
	case errors.Is(err, ErrKeyMismatch):
		return "Signature verification failed"
	case errors.Is(err, access.ErrRoleMismatch):
		return "Role mismatch: access denied"
	case errors.Is(err, access.ErrInsufficientBalanceAfterRetries):
		return "Insufficient balance after retries"
	case errors.Is(err, access.ErrCollaboratorUnavailable):
		return "Collaborator unavailable"
	case errors.Is(err, audit.ErrWriteFailed):
		return "Audit write failed"
	case errors.Is(err, adp.ErrNoRecord):
		return "No ADP record found for domain"
	case errors.Is(err, adp.ErrLookupFailed):
		return "Domain lookup failed after retries"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingClaim),
		errors.Is(err, auth.ErrNotAdmin):
		return "Invalid admin token"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	default:
		return err.Error()
	}
}
