// ABOUTME: Persistence of verified ADP domain-to-address associations.
// ABOUTME: Re-verification of a domain replaces the previous association.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveAssociation stores a verified domain association, replacing any
// earlier verification of the same domain.
func (s *SQLiteStore) SaveAssociation(ctx context.Context, assoc *ADPAssociation) error {
	query := `
		INSERT INTO adp_associations (domain, ecash_address, verified_at)
		VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET ecash_address = excluded.ecash_address, verified_at = excluded.verified_at
	`

	_, err := s.db.ExecContext(ctx, query,
		assoc.Domain,
		assoc.EcashAddress,
		assoc.VerifiedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving ADP association: %w", err)
	}

	s.logger.Debug("saved ADP association", "domain", assoc.Domain, "address", assoc.EcashAddress)
	return nil
}

// GetAssociation returns the verified association for a domain, or
// ErrNotFound if the domain has not been verified.
func (s *SQLiteStore) GetAssociation(ctx context.Context, domain string) (*ADPAssociation, error) {
	query := `SELECT domain, ecash_address, verified_at FROM adp_associations WHERE domain = ?`

	var assoc ADPAssociation
	var verifiedAtStr string
	err := s.db.QueryRowContext(ctx, query, domain).Scan(&assoc.Domain, &assoc.EcashAddress, &verifiedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ADP association: %w", err)
	}

	verifiedAt, err := time.Parse(time.RFC3339, verifiedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing verified_at: %w", err)
	}
	assoc.VerifiedAt = verifiedAt

	return &assoc, nil
}
