// ABOUTME: Tests for the audit recorder, id generation, and history cursor.
// ABOUTME: Covers signing, canonical bytes stability, id uniqueness/ordering.

package audit

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webizen/access-gateway/internal/store"
)

// memAuditStore keeps records in memory for recorder tests.
type memAuditStore struct {
	records []*store.AuditRecord
	failing bool
}

func (m *memAuditStore) AppendAuditEntry(_ context.Context, rec *store.AuditRecord) error {
	if m.failing {
		return errors.New("disk full")
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memAuditStore) ListAuditEntries(_ context.Context, walletID string, limit, offset int) ([]*store.AuditRecord, error) {
	var matched []*store.AuditRecord
	for _, rec := range m.records {
		if rec.WalletID == walletID {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].EntryID > matched[j].EntryID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func newTestRecorder(t *testing.T, s store.AuditStore) (*Recorder, *Ed25519Signer) {
	t.Helper()
	signer, err := GenerateEd25519Signer()
	require.NoError(t, err)
	return NewRecorder(signer, s, slog.New(slog.NewTextHandler(io.Discard, nil))), signer
}

func TestRecorder_RecordSignsAndPersists(t *testing.T) {
	mem := &memAuditStore{}
	r, signer := newTestRecorder(t, mem)

	entry, err := r.Record(context.Background(), CostEntry{
		WalletID: "wallet-1",
		Service:  "initial_access",
		Cost:     0,
	})
	require.NoError(t, err)
	require.Len(t, mem.records, 1)

	assert.NotEmpty(t, entry.ID)
	assert.NotEmpty(t, entry.Signature)
	assert.Equal(t, "ed25519", entry.Scheme)
	assert.Equal(t, "XEC", entry.Cost.Currency, "currency defaults to XEC")
	assert.False(t, entry.Cost.Timestamp.IsZero())

	// The detached signature verifies against the canonical serialization.
	ok := ed25519.Verify(signer.PublicKey(), CanonicalBytes(entry.Cost), entry.Signature)
	assert.True(t, ok)

	// The persisted signature matches the returned one.
	assert.Equal(t, base64.StdEncoding.EncodeToString(entry.Signature), mem.records[0].Signature)
}

func TestRecorder_WriteFailureSurfacesAuditError(t *testing.T) {
	mem := &memAuditStore{failing: true}
	r, _ := newTestRecorder(t, mem)

	_, err := r.Record(context.Background(), CostEntry{WalletID: "wallet-1", Service: "ai_query", Cost: 5})
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestRecorder_IDsUniqueAndOrderedWithinMillisecond(t *testing.T) {
	mem := &memAuditStore{}
	r, _ := newTestRecorder(t, mem)

	const n = 10000
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = r.nextID()
	}

	seen := make(map[string]struct{}, n)
	for i, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id at %d: %s", i, id)
		seen[id] = struct{}{}
	}

	// Creation order matches the order of the ms:seq prefix (the uuid
	// suffix only guards against collisions, it does not order).
	prev := idPrefix(t, ids[0])
	for _, id := range ids[1:] {
		cur := idPrefix(t, id)
		require.Less(t, prev, cur, "id prefixes must be strictly increasing")
		prev = cur
	}
}

// idPrefix extracts the sortable "ms:seq" portion of an audit id.
func idPrefix(t *testing.T, id string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(id, "urn:audit:"))
	rest := strings.TrimPrefix(id, "urn:audit:")
	parts := strings.SplitN(rest, ":", 3)
	require.Len(t, parts, 3)
	return parts[0] + ":" + parts[1]
}

func TestCanonicalBytes_StableFieldOrder(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := CanonicalBytes(CostEntry{
		WalletID:  "wallet-1",
		Service:   "ai_query",
		Cost:      42,
		Currency:  "XEC",
		Timestamp: ts,
	})
	want := `{"walletId":"wallet-1","serviceName":"ai_query","cost":42,"currency":"XEC","timestamp":"2026-03-01T12:00:00Z"}`
	assert.Equal(t, want, string(got))
}

func TestCanonicalBytes_EscapesSpecials(t *testing.T) {
	got := CanonicalBytes(CostEntry{
		WalletID: `wal"let`,
		Service:  "a\\b",
		Currency: "XEC",
	})
	assert.Contains(t, string(got), `wal\"let`)
	assert.Contains(t, string(got), `a\\b`)
}

func TestHistoryCursor_PagesLazily(t *testing.T) {
	mem := &memAuditStore{}
	r, _ := newTestRecorder(t, mem)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 7; i++ {
		_, err := r.Record(ctx, CostEntry{
			WalletID:  "wallet-1",
			Service:   "ai_query",
			Cost:      int64(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	cursor := r.History("wallet-1")
	cursor.pageSize = 3

	records, err := cursor.Collect(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 7)

	// Reverse-chronological: the last recorded entry comes first.
	assert.Equal(t, int64(6), records[0].Cost)
	assert.Equal(t, int64(0), records[6].Cost)

	// Drained cursor keeps returning nil.
	rec, err := cursor.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestHistoryCursor_EmptyHistory(t *testing.T) {
	mem := &memAuditStore{}
	r, _ := newTestRecorder(t, mem)

	records, err := r.History("wallet-none").Collect(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryCursor_CollectLimit(t *testing.T) {
	mem := &memAuditStore{}
	r, _ := newTestRecorder(t, mem)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.Record(ctx, CostEntry{WalletID: "wallet-1", Service: "sync", Cost: 1})
		require.NoError(t, err)
	}

	records, err := r.History("wallet-1").Collect(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestEd25519Signer_SeedRoundTrip(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	s1, err := NewEd25519Signer(seed)
	require.NoError(t, err)

	s2, err := NewEd25519SignerFromBase64(base64.StdEncoding.EncodeToString(seed))
	require.NoError(t, err)

	sig1, _ := s1.Sign([]byte("data"))
	sig2, _ := s2.Sign([]byte("data"))
	assert.Equal(t, sig1, sig2)
}

func TestEd25519Signer_BadSeed(t *testing.T) {
	_, err := NewEd25519Signer([]byte("short"))
	assert.Error(t, err)

	_, err = NewEd25519SignerFromBase64("!!!not-base64!!!")
	assert.Error(t, err)
}
