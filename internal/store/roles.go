// ABOUTME: Role assignment persistence for wallet-level authorization.
// ABOUTME: One role per wallet, last write wins, mutated only via AssignRole.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AssignRole sets the role for a wallet, replacing any existing assignment.
func (s *SQLiteStore) AssignRole(ctx context.Context, walletID, role string) error {
	query := `
		INSERT INTO role_assignments (wallet_id, role, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(wallet_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		walletID,
		role,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}

	s.logger.Debug("assigned role", "wallet_id", walletID, "role", role)
	return nil
}

// GetRole returns the role assigned to a wallet, or ErrNotFound if the
// wallet has no assignment.
func (s *SQLiteStore) GetRole(ctx context.Context, walletID string) (string, error) {
	query := `SELECT role FROM role_assignments WHERE wallet_id = ?`

	var role string
	err := s.db.QueryRowContext(ctx, query, walletID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying role: %w", err)
	}

	return role, nil
}
