// ABOUTME: Endpoint handlers for the gateway's websocket API.
// ABOUTME: Each handler parses its payload, calls a collaborator, returns a result.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/webizen/access-gateway/internal/access"
	"github.com/webizen/access-gateway/internal/store"
)

// ErrKeyMismatch means a request was signed with a key other than the one
// the wallet is bound to.
var ErrKeyMismatch = errors.New("wallet bound to a different key")

// handlerFunc processes one endpoint's payload and returns the response
// payload or an error to be mapped into the error envelope. fingerprint
// identifies the verified signing key of the request.
type handlerFunc func(ctx context.Context, fingerprint string, payload json.RawMessage) (any, error)

// stubEndpoints are routed domain endpoints acknowledged but not yet
// backed by modules. They still pass the full pipeline (rate limit and
// signature verification) before reaching the stub.
var stubEndpoints = []string{
	"/modules/register",
	"/modules/unregister",
	"/resources/load",
	"/ai/query",
	"/sync/data",
	"/work/create",
	"/email/respond",
}

func (s *Server) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		"/access/grant":       s.handleGrant,
		"/access/track":       s.handleTrack,
		"/access/assign-role": s.handleAssignRole,
		"/adp/verify":         s.handleADPVerify,
		"/audit/history":      s.handleAuditHistory,
		"/health":             s.handleHealth,
	}
	for _, ep := range stubEndpoints {
		s.handlers[ep] = stubHandler(ep)
	}
}

type grantRequest struct {
	WalletID     string `json:"walletId"`
	SLPTokenID   string `json:"slpTokenId,omitempty"`
	RequiredRole string `json:"requiredRole,omitempty"`
}

func (s *Server) handleGrant(ctx context.Context, fingerprint string, payload json.RawMessage) (any, error) {
	var req grantRequest
	if err := parsePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.WalletID == "" {
		return nil, fmt.Errorf("%w: walletId is required", ErrInvalidRequest)
	}
	if err := s.authorizeWallet(ctx, req.WalletID, fingerprint); err != nil {
		return nil, err
	}

	granted, err := s.controller.GrantAccess(ctx, access.Request{
		WalletID:     req.WalletID,
		TokenID:      req.SLPTokenID,
		RequiredRole: req.RequiredRole,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"granted": granted, "walletId": req.WalletID}, nil
}

type trackRequest struct {
	WalletID    string `json:"walletId"`
	ServiceName string `json:"serviceName"`
	Cost        int64  `json:"cost"`
}

func (s *Server) handleTrack(ctx context.Context, fingerprint string, payload json.RawMessage) (any, error) {
	var req trackRequest
	if err := parsePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.WalletID == "" || req.ServiceName == "" {
		return nil, fmt.Errorf("%w: walletId and serviceName are required", ErrInvalidRequest)
	}
	if req.Cost < 0 {
		return nil, fmt.Errorf("%w: cost must not be negative", ErrInvalidRequest)
	}
	if err := s.authorizeWallet(ctx, req.WalletID, fingerprint); err != nil {
		return nil, err
	}

	if err := s.controller.TrackObligationCost(ctx, req.WalletID, req.ServiceName, req.Cost); err != nil {
		return nil, err
	}
	return map[string]any{"tracked": true, "walletId": req.WalletID}, nil
}

type assignRoleRequest struct {
	AdminToken string `json:"adminToken"`
	WalletID   string `json:"walletId"`
	Role       string `json:"role"`
}

// handleAssignRole is authorized by the admin JWT, not the envelope key:
// the signer is the operator, not the wallet being assigned.
func (s *Server) handleAssignRole(ctx context.Context, _ string, payload json.RawMessage) (any, error) {
	var req assignRoleRequest
	if err := parsePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.WalletID == "" || req.Role == "" {
		return nil, fmt.Errorf("%w: walletId and role are required", ErrInvalidRequest)
	}

	operator, err := s.admin.VerifyAdmin(req.AdminToken)
	if err != nil {
		return nil, err
	}

	if err := s.controller.AssignRole(ctx, req.WalletID, req.Role); err != nil {
		return nil, err
	}
	s.logger.Info("role assigned by operator",
		"operator", operator,
		"wallet_id", req.WalletID,
		"role", req.Role,
	)
	return map[string]any{"assigned": true, "walletId": req.WalletID, "role": req.Role}, nil
}

type adpVerifyRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) handleADPVerify(ctx context.Context, _ string, payload json.RawMessage) (any, error) {
	var req adpVerifyRequest
	if err := parsePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.Domain == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidRequest)
	}

	assoc, err := s.domains.VerifyDomain(ctx, req.Domain)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"domain":       assoc.Domain,
		"ecashAddress": assoc.EcashAddress,
		"verifiedAt":   assoc.VerifiedAt.Format(time.RFC3339),
	}, nil
}

type historyRequest struct {
	WalletID string `json:"walletId"`
	Limit    int    `json:"limit,omitempty"`
}

func (s *Server) handleAuditHistory(ctx context.Context, fingerprint string, payload json.RawMessage) (any, error) {
	var req historyRequest
	if err := parsePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.WalletID == "" {
		return nil, fmt.Errorf("%w: walletId is required", ErrInvalidRequest)
	}
	if err := s.authorizeWallet(ctx, req.WalletID, fingerprint); err != nil {
		return nil, err
	}

	records, err := s.recorder.History(req.WalletID).Collect(ctx, req.Limit)
	if err != nil {
		return nil, err
	}

	entries := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		entries = append(entries, auditRecordPayload(rec))
	}
	return map[string]any{"walletId": req.WalletID, "entries": entries}, nil
}

func auditRecordPayload(rec *store.AuditRecord) map[string]any {
	return map[string]any{
		"id":          rec.EntryID,
		"walletId":    rec.WalletID,
		"serviceName": rec.Service,
		"cost":        rec.Cost,
		"currency":    rec.Currency,
		"timestamp":   rec.Timestamp.Format(time.RFC3339Nano),
		"signature":   rec.Signature,
		"scheme":      rec.Scheme,
	}
}

// handleHealth reports per-collaborator status keys at the top level,
// "ok" or "degraded" each, with a timestamp and the response time.
func (s *Server) handleHealth(ctx context.Context, _ string, _ json.RawMessage) (any, error) {
	start := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	storeStatus := "ok"
	if err := s.health.Ping(pingCtx); err != nil {
		storeStatus = "degraded"
		s.logger.Warn("store health check failed", "error", err)
	}

	return map[string]any{
		"api":          "ok",
		"store":        storeStatus,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"responseTime": time.Since(start).Milliseconds(),
	}, nil
}

// stubHandler acknowledges a routed endpoint that has no module behind it.
func stubHandler(endpoint string) handlerFunc {
	return func(context.Context, string, json.RawMessage) (any, error) {
		return map[string]any{"accepted": true, "endpoint": endpoint}, nil
	}
}

// authorizeWallet binds a wallet to the first key that signs for it and
// rejects later requests signed with any other key.
func (s *Server) authorizeWallet(ctx context.Context, walletID, fingerprint string) error {
	bound, err := s.keys.GetKeyFingerprint(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) {
		return s.keys.BindKey(ctx, walletID, fingerprint)
	}
	if err != nil {
		return fmt.Errorf("%w: key lookup: %w", access.ErrCollaboratorUnavailable, err)
	}
	if bound != fingerprint {
		s.logger.Info("rejected request signed with unbound key", "wallet_id", walletID)
		return ErrKeyMismatch
	}
	return nil
}

func parsePayload(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidRequest)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
