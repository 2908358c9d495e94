// ABOUTME: Lazy, restartable cursor over a wallet's audit history.
// ABOUTME: Pages reverse-chronological batches from the store on demand.

package audit

import (
	"context"

	"github.com/webizen/access-gateway/internal/store"
)

// defaultPageSize is how many records a cursor fetches per store query.
const defaultPageSize = 50

// HistoryCursor walks a wallet's audit entries newest-first, fetching a
// batch from the store only when the buffered one is exhausted. It is not
// an in-memory snapshot: entries appended after the cursor was created may
// appear in later pages.
type HistoryCursor struct {
	store    store.AuditStore
	walletID string
	pageSize int

	buf      []*store.AuditRecord
	pos      int
	offset   int
	depleted bool
}

// History returns a cursor over the wallet's audit entries in
// reverse-chronological order.
func (r *Recorder) History(walletID string) *HistoryCursor {
	return &HistoryCursor{
		store:    r.store,
		walletID: walletID,
		pageSize: defaultPageSize,
	}
}

// Next returns the next audit record, or (nil, nil) when the history is
// exhausted.
func (c *HistoryCursor) Next(ctx context.Context) (*store.AuditRecord, error) {
	if c.pos >= len(c.buf) {
		if c.depleted {
			return nil, nil
		}
		if err := c.fetch(ctx); err != nil {
			return nil, err
		}
		if len(c.buf) == 0 {
			return nil, nil
		}
	}

	rec := c.buf[c.pos]
	c.pos++
	return rec, nil
}

// Collect drains up to limit records from the cursor. A non-positive limit
// drains the full history.
func (c *HistoryCursor) Collect(ctx context.Context, limit int) ([]*store.AuditRecord, error) {
	var out []*store.AuditRecord
	for limit <= 0 || len(out) < limit {
		rec, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// fetch loads the next batch from the store.
func (c *HistoryCursor) fetch(ctx context.Context) error {
	records, err := c.store.ListAuditEntries(ctx, c.walletID, c.pageSize, c.offset)
	if err != nil {
		return err
	}
	c.buf = records
	c.pos = 0
	c.offset += len(records)
	if len(records) < c.pageSize {
		c.depleted = true
	}
	return nil
}
