// ABOUTME: Payment retry engine executing debits against the ledger collaborator.
// ABOUTME: Bounded attempts with a fixed inter-attempt delay, cancellable via context.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/webizen/access-gateway/internal/retry"
)

// Payment engine defaults, matching the Webizen access policy.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1000 * time.Millisecond
)

// ErrPaymentExhausted is returned when every payment attempt failed.
var ErrPaymentExhausted = errors.New("payment failed after all retries")

// ErrPaymentRejected is returned when the ledger refused the payment
// outright, before the retry bound came into play.
var ErrPaymentRejected = errors.New("payment rejected by ledger")

// PaymentEngine executes a payment against the ledger with bounded retries.
// Unlike domain verification, the delay between attempts is fixed rather
// than exponential. A debit either fully succeeds or has no effect; partial
// side effects are the ledger's problem to prevent, not ours.
type PaymentEngine struct {
	client     LedgerClient
	maxRetries int
	retryDelay time.Duration
	attempts   AttemptCounter
	logger     *slog.Logger
}

// AttemptCounter receives one Inc per payment attempt submitted to the
// ledger. Satisfied by prometheus.Counter.
type AttemptCounter interface {
	Inc()
}

// NewPaymentEngine creates a payment engine over the given ledger client.
// Non-positive limits fall back to the defaults.
func NewPaymentEngine(client LedgerClient, maxRetries int, retryDelay time.Duration, logger *slog.Logger) *PaymentEngine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &PaymentEngine{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// SetAttemptCounter installs an attempt counter. Must be called before the
// engine processes its first payment.
func (e *PaymentEngine) SetAttemptCounter(c AttemptCounter) {
	e.attempts = c
}

// ProcessPayment attempts to debit walletID by amount, retrying transient
// ledger failures up to the configured bound. Terminal ledger errors
// (rejection, unknown wallet) stop immediately. Cancelling ctx abandons any
// pending retry sleep and returns the context error.
func (e *PaymentEngine) ProcessPayment(ctx context.Context, walletID string, amount int64) (*Receipt, error) {
	var receipt *Receipt
	attempt := 0

	policy := retry.Policy{
		MaxAttempts: e.maxRetries,
		Delay:       retry.Fixed(e.retryDelay),
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		if e.attempts != nil {
			e.attempts.Inc()
		}
		r, err := e.client.Pay(ctx, walletID, amount)
		if err != nil {
			e.logger.Warn("payment attempt failed",
				"wallet_id", walletID,
				"amount", amount,
				"attempt", attempt,
				"max_retries", e.maxRetries,
				"error", err,
			)
			if !IsTransient(err) {
				return retry.Terminal(err)
			}
			return err
		}
		receipt = r
		return nil
	})

	switch {
	case err == nil:
		e.logger.Info("payment succeeded",
			"wallet_id", walletID,
			"amount", amount,
			"attempts", attempt,
			"tx_id", receipt.TransactionID,
		)
		return receipt, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case retry.IsTerminal(err):
		return nil, fmt.Errorf("%w: %w", ErrPaymentRejected, err)
	default:
		return nil, fmt.Errorf("%w: last error: %w", ErrPaymentExhausted, err)
	}
}
