// ABOUTME: Admission controller deciding whether a protected operation may proceed.
// ABOUTME: Layered policy: role gate, token bypass, balance threshold, payment.

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/webizen/access-gateway/internal/audit"
	"github.com/webizen/access-gateway/internal/ledger"
	"github.com/webizen/access-gateway/internal/store"
)

// Policy defaults, in currency minor units.
const (
	DefaultBalanceThreshold = 200000
	DefaultPaymentAmount    = 100

	// ServiceInitialAccess is the service name recorded for the zero-cost
	// entry every granted admission produces.
	ServiceInitialAccess = "initial_access"
)

// Request is an immutable admission request. TokenID and RequiredRole are
// optional; an empty string means the check does not apply.
type Request struct {
	WalletID     string
	TokenID      string
	RequiredRole string
}

// Controller evaluates admission requests against the layered access
// policy. All collaborators are injected; the controller holds no ambient
// state beyond configuration.
type Controller struct {
	roles     store.RoleStore
	tokens    ledger.TokenValidator
	client    ledger.LedgerClient
	payments  *ledger.PaymentEngine
	recorder  *audit.Recorder
	threshold int64
	payment   int64
	logger    *slog.Logger
}

// Config carries the tunable policy values.
type Config struct {
	BalanceThreshold int64
	PaymentAmount    int64
}

// NewController wires an admission controller from its collaborators.
// Non-positive config values fall back to the defaults.
func NewController(
	roles store.RoleStore,
	tokens ledger.TokenValidator,
	client ledger.LedgerClient,
	payments *ledger.PaymentEngine,
	recorder *audit.Recorder,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	if cfg.BalanceThreshold <= 0 {
		cfg.BalanceThreshold = DefaultBalanceThreshold
	}
	if cfg.PaymentAmount <= 0 {
		cfg.PaymentAmount = DefaultPaymentAmount
	}
	return &Controller{
		roles:     roles,
		tokens:    tokens,
		client:    client,
		payments:  payments,
		recorder:  recorder,
		threshold: cfg.BalanceThreshold,
		payment:   cfg.PaymentAmount,
		logger:    logger,
	}
}

// GrantAccess decides whether the wallet may proceed. The checks are
// layered and short-circuit on the first success:
//
//  1. A required role that is not held denies immediately, with no cost
//     entry and no further checks.
//  2. A valid token grants immediately, bypassing the balance check.
//     An invalid token falls through to the balance path.
//  3. A balance at or below the threshold grants without payment; above
//     it, the payment engine must succeed within its retry bound.
//
// Every grant records exactly one zero-cost obligation entry. An audit
// write failure is logged and reported but never reverses the grant.
func (c *Controller) GrantAccess(ctx context.Context, req Request) (bool, error) {
	if req.RequiredRole != "" {
		if err := c.checkRole(ctx, req); err != nil {
			return false, err
		}
	}

	if req.TokenID != "" {
		granted, err := c.checkToken(ctx, req)
		if err != nil {
			return false, err
		}
		if granted {
			c.recordGrant(ctx, req.WalletID)
			return true, nil
		}
		// fall through to the balance path
	}

	if err := c.checkBalanceAndPay(ctx, req); err != nil {
		return false, err
	}

	c.recordGrant(ctx, req.WalletID)
	return true, nil
}

// checkRole denies unless the wallet holds exactly the required role.
func (c *Controller) checkRole(ctx context.Context, req Request) error {
	role, err := c.roles.GetRole(ctx, req.WalletID)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Info("access denied: no role assigned",
			"wallet_id", req.WalletID,
			"required_role", req.RequiredRole,
		)
		return ErrRoleMismatch
	}
	if err != nil {
		return fmt.Errorf("%w: role lookup: %w", ErrCollaboratorUnavailable, err)
	}
	if role != req.RequiredRole {
		c.logger.Info("access denied: role mismatch",
			"wallet_id", req.WalletID,
			"required_role", req.RequiredRole,
			"held_role", role,
		)
		return ErrRoleMismatch
	}
	return nil
}

// checkToken reports whether the supplied token grants a payment bypass.
func (c *Controller) checkToken(ctx context.Context, req Request) (bool, error) {
	valid, err := c.tokens.ValidateToken(ctx, req.TokenID)
	if errors.Is(err, ErrInvalidToken) {
		valid, err = false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: token validation: %w", ErrCollaboratorUnavailable, err)
	}
	if !valid {
		c.logger.Debug("token not valid, falling back to balance check",
			"wallet_id", req.WalletID,
			"token_id", req.TokenID,
		)
		return false, nil
	}
	c.logger.Info("access granted via token", "wallet_id", req.WalletID)
	return true, nil
}

// checkBalanceAndPay grants free access below the threshold and runs the
// payment engine above it.
func (c *Controller) checkBalanceAndPay(ctx context.Context, req Request) error {
	balance, err := c.client.Balance(ctx, req.WalletID)
	if err != nil {
		return fmt.Errorf("%w: balance check: %w", ErrCollaboratorUnavailable, err)
	}

	if balance <= c.threshold {
		c.logger.Info("access granted within balance threshold",
			"wallet_id", req.WalletID,
			"balance", balance,
			"threshold", c.threshold,
		)
		return nil
	}

	c.logger.Info("balance exceeds threshold, payment required",
		"wallet_id", req.WalletID,
		"balance", balance,
		"threshold", c.threshold,
		"amount", c.payment,
	)

	if _, err := c.payments.ProcessPayment(ctx, req.WalletID, c.payment); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.logger.Warn("access denied: payment exhausted",
			"wallet_id", req.WalletID,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrInsufficientBalanceAfterRetries, err)
	}
	return nil
}

// recordGrant writes the zero-cost obligation entry for a granted
// admission. Failure here is deliberately asymmetric: the grant stands,
// the failure is logged and counted, and nothing is rolled back.
func (c *Controller) recordGrant(ctx context.Context, walletID string) {
	_, err := c.recorder.Record(ctx, audit.CostEntry{
		WalletID: walletID,
		Service:  ServiceInitialAccess,
		Cost:     0,
	})
	if err != nil {
		c.logger.Error("audit write failed for granted access",
			"wallet_id", walletID,
			"error", err,
		)
	}
}

// TrackObligationCost records a metered cost against a wallet
// independently of any admission decision, e.g. for a downstream AI query.
func (c *Controller) TrackObligationCost(ctx context.Context, walletID, service string, cost int64) error {
	_, err := c.recorder.Record(ctx, audit.CostEntry{
		WalletID: walletID,
		Service:  service,
		Cost:     cost,
	})
	if err != nil {
		return err
	}
	return nil
}

// AssignRole sets a wallet's role, replacing any existing assignment.
func (c *Controller) AssignRole(ctx context.Context, walletID, role string) error {
	if err := c.roles.AssignRole(ctx, walletID, role); err != nil {
		return fmt.Errorf("%w: role assignment: %w", ErrCollaboratorUnavailable, err)
	}
	c.logger.Info("role assigned", "wallet_id", walletID, "role", role)
	return nil
}
