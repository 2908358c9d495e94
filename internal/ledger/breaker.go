// ABOUTME: Circuit breaker wrapper around a LedgerClient using gobreaker.
// ABOUTME: Sheds load from a flapping ledger collaborator before retries pile up.

package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient wraps a LedgerClient with a circuit breaker. When the ledger
// fails repeatedly the breaker opens and calls fail fast with ErrUnavailable
// instead of waiting out timeouts on a collaborator that is known to be down.
type BreakerClient struct {
	inner  LedgerClient
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreakerClient wraps inner with a circuit breaker that trips after
// repeated failures and probes again after timeout.
func NewBreakerClient(inner LedgerClient, timeout time.Duration, logger *slog.Logger) *BreakerClient {
	b := &BreakerClient{
		inner:  inner,
		logger: logger,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ledger",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("ledger circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Rejections are the ledger answering, not the ledger failing.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	})

	return b
}

// Balance queries the wallet balance through the breaker.
func (b *BreakerClient) Balance(ctx context.Context, walletID string) (int64, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Balance(ctx, walletID)
	})
	if err != nil {
		return 0, mapBreakerErr(err)
	}
	return v.(int64), nil
}

// Pay debits the wallet through the breaker.
func (b *BreakerClient) Pay(ctx context.Context, walletID string, amount int64) (*Receipt, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Pay(ctx, walletID, amount)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return v.(*Receipt), nil
}

// mapBreakerErr converts gobreaker sentinel errors into the ledger's
// transient unavailable class so retry policy treats an open breaker the
// same as an unreachable ledger.
func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

var _ LedgerClient = (*BreakerClient)(nil)
