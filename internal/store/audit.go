// ABOUTME: Audit entry persistence for the obligation-cost trail.
// ABOUTME: Append-only writes plus reverse-chronological paged reads per wallet.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// auditTSLayout is RFC3339 with fixed nine-digit fractional seconds.
// Variable-width fractions sort wrong as strings ("…0.1Z" after "…0.15Z"),
// and the ts column is ordered lexicographically.
const auditTSLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AppendAuditEntry inserts a new audit record. Records are never updated or
// deleted; a duplicate entry id is an error, not an upsert.
func (s *SQLiteStore) AppendAuditEntry(ctx context.Context, rec *AuditRecord) error {
	query := `
		INSERT INTO audit_entries (entry_id, wallet_id, service, cost, currency, ts, signature, scheme)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.EntryID,
		rec.WalletID,
		rec.Service,
		rec.Cost,
		rec.Currency,
		rec.Timestamp.UTC().Format(auditTSLayout),
		rec.Signature,
		rec.Scheme,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit entry",
		"entry_id", rec.EntryID,
		"wallet_id", rec.WalletID,
		"service", rec.Service,
		"cost", rec.Cost,
	)
	return nil
}

// ListAuditEntries returns up to limit records for a wallet, newest first,
// skipping offset records. Ties on timestamp are broken by entry id, which
// embeds the creation-ordered millisecond clock.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, walletID string, limit, offset int) ([]*AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT entry_id, wallet_id, service, cost, currency, ts, signature, scheme
		FROM audit_entries
		WHERE wallet_id = ?
		ORDER BY ts DESC, entry_id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return records, nil
}

// scanAuditRecord scans a row into an AuditRecord.
func scanAuditRecord(rows *sql.Rows) (*AuditRecord, error) {
	var rec AuditRecord
	var tsStr string

	if err := rows.Scan(
		&rec.EntryID,
		&rec.WalletID,
		&rec.Service,
		&rec.Cost,
		&rec.Currency,
		&tsStr,
		&rec.Signature,
		&rec.Scheme,
	); err != nil {
		return nil, fmt.Errorf("scanning audit entry: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	rec.Timestamp = ts

	return &rec, nil
}
