// ABOUTME: Contracts for the external eCash ledger and SLP token collaborators.
// ABOUTME: Defines LedgerClient, TokenValidator, Receipt, and the error classes.

package ledger

import (
	"context"
	"errors"
	"time"
)

// Ledger collaborator errors. Unavailable and Timeout are transient and may
// be retried; Rejected means the ledger refused the operation outright.
var (
	ErrUnavailable   = errors.New("ledger unavailable")
	ErrTimeout       = errors.New("ledger request timed out")
	ErrRejected      = errors.New("ledger rejected the transaction")
	ErrWalletUnknown = errors.New("wallet not found")
)

// Receipt describes a completed debit against a wallet.
type Receipt struct {
	TransactionID string
	WalletID      string
	Amount        int64
	Timestamp     time.Time
}

// LedgerClient is the narrow interface to the external payment network. The
// gateway never caches balances beyond a single admission decision, and
// idempotency of debits is the ledger's responsibility, not the caller's.
type LedgerClient interface {
	// Balance returns the wallet's current balance in currency minor units.
	Balance(ctx context.Context, walletID string) (int64, error)

	// Pay debits the wallet by amount, returning a receipt on success.
	Pay(ctx context.Context, walletID string, amount int64) (*Receipt, error)
}

// TokenValidator validates SLP access tokens against the token service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenID string) (bool, error)
}

// IsTransient reports whether a ledger error is worth retrying. Rejections
// and unknown wallets are definitive; availability and timeout failures are
// not.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrWalletUnknown) {
		return false
	}
	return true
}
