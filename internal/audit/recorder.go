// ABOUTME: Obligation audit log: signed, timestamped, append-only records.
// ABOUTME: Canonical serialization, unique ordered ids, persistence via AuditStore.

package audit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webizen/access-gateway/internal/store"
)

// ErrWriteFailed wraps persistence failures. Callers must not treat a
// failed audit write as a reason to reverse an already-granted decision;
// the failure is reported, not rolled back.
var ErrWriteFailed = errors.New("audit write failed")

// CostEntry is an obligation-cost event: the metered cost attributed to a
// wallet for consuming a gated service. Cost may be zero (initial access).
type CostEntry struct {
	WalletID  string
	Service   string
	Cost      int64
	Currency  string
	Timestamp time.Time
}

// Entry is a signed, immutable audit record pairing a cost entry with a
// detached signature over its canonical serialization.
type Entry struct {
	ID        string
	Cost      CostEntry
	Signature []byte
	Scheme    string
}

// Recorder converts obligation-cost events into signed audit entries and
// persists them. The store is the system of record; the recorder keeps no
// copy.
type Recorder struct {
	signer Signer
	store  store.AuditStore
	logger *slog.Logger

	// id generation state; guards the monotonic millisecond clock
	mu     sync.Mutex
	lastMs int64
	seq    int
}

// NewRecorder creates a recorder with the given signer and store.
func NewRecorder(signer Signer, auditStore store.AuditStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		signer: signer,
		store:  auditStore,
		logger: logger,
	}
}

// Record signs and persists a cost entry, returning the resulting audit
// entry. A zero Timestamp is filled with the current time. Persistence
// failures surface as ErrWriteFailed.
func (r *Recorder) Record(ctx context.Context, cost CostEntry) (*Entry, error) {
	if cost.Timestamp.IsZero() {
		cost.Timestamp = time.Now().UTC()
	}
	if cost.Currency == "" {
		cost.Currency = "XEC"
	}

	data := CanonicalBytes(cost)
	sig, err := r.signer.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("signing audit entry: %w", err)
	}

	entry := &Entry{
		ID:        r.nextID(),
		Cost:      cost,
		Signature: sig,
		Scheme:    r.signer.Scheme(),
	}

	rec := &store.AuditRecord{
		EntryID:   entry.ID,
		WalletID:  cost.WalletID,
		Service:   cost.Service,
		Cost:      cost.Cost,
		Currency:  cost.Currency,
		Timestamp: cost.Timestamp,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Scheme:    entry.Scheme,
	}
	if err := r.store.AppendAuditEntry(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	r.logger.Debug("recorded obligation cost",
		"entry_id", entry.ID,
		"wallet_id", cost.WalletID,
		"service", cost.Service,
		"cost", cost.Cost,
		"currency", cost.Currency,
	)
	return entry, nil
}

// nextID generates a unique, creation-ordered entry id of the form
// urn:audit:<ms>:<seq>:<uuid>. The sequence counter orders entries created
// within the same millisecond; the uuid component rules out collisions. The
// millisecond clock never moves backwards across calls.
func (r *Recorder) nextID() string {
	r.mu.Lock()
	ms := time.Now().UnixMilli()
	if ms < r.lastMs {
		ms = r.lastMs
	}
	if ms == r.lastMs {
		r.seq++
	} else {
		r.lastMs = ms
		r.seq = 0
	}
	seq := r.seq
	r.mu.Unlock()

	return fmt.Sprintf("urn:audit:%d:%06d:%s", ms, seq, uuid.New().String())
}

// CanonicalBytes serializes a cost entry with a stable field order. The
// serialization is what gets signed, so the order must never change.
func CanonicalBytes(cost CostEntry) []byte {
	var b strings.Builder
	b.WriteString(`{"walletId":`)
	b.WriteString(quoteJSON(cost.WalletID))
	b.WriteString(`,"serviceName":`)
	b.WriteString(quoteJSON(cost.Service))
	b.WriteString(`,"cost":`)
	fmt.Fprintf(&b, "%d", cost.Cost)
	b.WriteString(`,"currency":`)
	b.WriteString(quoteJSON(cost.Currency))
	b.WriteString(`,"timestamp":`)
	b.WriteString(quoteJSON(cost.Timestamp.UTC().Format(time.RFC3339Nano)))
	b.WriteString(`}`)
	return []byte(b.String())
}

// quoteJSON escapes a string as a JSON string literal. Only the characters
// that can appear in wallet ids, service names, and timestamps need care.
func quoteJSON(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
