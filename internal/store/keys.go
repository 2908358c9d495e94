// ABOUTME: Wallet signing-key binding persistence.
// ABOUTME: One fingerprint per wallet, written once on first signed request.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BindKey records the fingerprint a wallet signs with. The binding is
// write-once; rebinding an existing wallet is an error.
func (s *SQLiteStore) BindKey(ctx context.Context, walletID, fingerprint string) error {
	query := `
		INSERT INTO wallet_keys (wallet_id, fingerprint, bound_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		walletID,
		fingerprint,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("binding wallet key: %w", err)
	}

	s.logger.Debug("bound wallet key", "wallet_id", walletID, "fingerprint", fingerprint)
	return nil
}

// GetKeyFingerprint returns the fingerprint bound to a wallet, or
// ErrNotFound if the wallet has never signed a request.
func (s *SQLiteStore) GetKeyFingerprint(ctx context.Context, walletID string) (string, error) {
	query := `SELECT fingerprint FROM wallet_keys WHERE wallet_id = ?`

	var fingerprint string
	err := s.db.QueryRowContext(ctx, query, walletID).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying wallet key: %w", err)
	}

	return fingerprint, nil
}
