// ABOUTME: Per-connection client session state.
// ABOUTME: Identity, creation time, rate window, and the disconnect cancel.

package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/webizen/access-gateway/internal/ratelimit"
)

// Session is the per-connection state. Each websocket connection gets
// exactly one session; it is discarded on disconnect and its cancel
// aborts any in-flight collaborator work.
type Session struct {
	ID        string
	CreatedAt time.Time

	limiter *ratelimit.Window
	cancel  context.CancelFunc
}

func newSession(window time.Duration, maxRequests int, cancel context.CancelFunc) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		limiter:   ratelimit.NewWindow(window, maxRequests),
		cancel:    cancel,
	}
}

// addSession registers a session in the table.
func (s *Server) addSession(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.metrics.ActiveSessions.Inc()
}

// removeSession drops a session and cancels its in-flight work.
func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	sess.cancel()
	s.metrics.ActiveSessions.Dec()
}

// SessionCount reports the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
