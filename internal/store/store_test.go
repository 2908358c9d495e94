// ABOUTME: Tests for SQLite persistence of audit entries, roles, and ADP rows.
// ABOUTME: Uses an in-memory database per test.

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(i int, walletID string, ts time.Time) *AuditRecord {
	return &AuditRecord{
		EntryID:   fmt.Sprintf("urn:audit:%d:%04d", ts.UnixMilli(), i),
		WalletID:  walletID,
		Service:   "initial_access",
		Cost:      0,
		Currency:  "XEC",
		Timestamp: ts,
		Signature: "c2ln",
		Scheme:    "ed25519",
	}
}

func TestAuditStore_AppendAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		rec := testRecord(i, "wallet-1", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.AppendAuditEntry(ctx, rec))
	}

	records, err := s.ListAuditEntries(ctx, "wallet-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	assert.True(t, records[0].Timestamp.After(records[1].Timestamp))
	assert.True(t, records[1].Timestamp.After(records[2].Timestamp))
	assert.Equal(t, "XEC", records[0].Currency)
	assert.Equal(t, "c2ln", records[0].Signature)
}

func TestAuditStore_ListOrdersFractionalSeconds(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// .1 and .15 within the same second: a trimmed-fraction encoding would
	// sort the older record after the newer one.
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	older := base.Add(100 * time.Millisecond)
	newer := base.Add(150 * time.Millisecond)
	require.NoError(t, s.AppendAuditEntry(ctx, testRecord(1, "wallet-1", older)))
	require.NoError(t, s.AppendAuditEntry(ctx, testRecord(2, "wallet-1", newer)))

	records, err := s.ListAuditEntries(ctx, "wallet-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer, records[0].Timestamp, "newest entry must come first")
	assert.Equal(t, older, records[1].Timestamp)
}

func TestAuditStore_DuplicateEntryIDRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord(1, "wallet-1", time.Now().UTC())
	require.NoError(t, s.AppendAuditEntry(ctx, rec))
	assert.Error(t, s.AppendAuditEntry(ctx, rec), "append-only log must reject duplicate ids")
}

func TestAuditStore_ListFiltersByWallet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.AppendAuditEntry(ctx, testRecord(1, "wallet-1", now)))
	require.NoError(t, s.AppendAuditEntry(ctx, testRecord(2, "wallet-2", now)))

	records, err := s.ListAuditEntries(ctx, "wallet-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "wallet-1", records[0].WalletID)
}

func TestAuditStore_ListPagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendAuditEntry(ctx, testRecord(i, "wallet-1", base.Add(time.Duration(i)*time.Second))))
	}

	page1, err := s.ListAuditEntries(ctx, "wallet-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := s.ListAuditEntries(ctx, "wallet-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	assert.NotEqual(t, page1[0].EntryID, page2[0].EntryID)
	assert.True(t, page1[1].Timestamp.After(page2[0].Timestamp) || page1[1].Timestamp.Equal(page2[0].Timestamp))
}

func TestKeyStore_BindAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BindKey(ctx, "wallet-1", "aabbcc"))

	fp, err := s.GetKeyFingerprint(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "aabbcc", fp)
}

func TestKeyStore_RebindRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BindKey(ctx, "wallet-1", "aabbcc"))
	assert.Error(t, s.BindKey(ctx, "wallet-1", "ddeeff"), "bindings are write-once")
}

func TestKeyStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetKeyFingerprint(context.Background(), "wallet-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoleStore_AssignAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AssignRole(ctx, "wallet-1", "admin"))

	role, err := s.GetRole(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
}

func TestRoleStore_LastWriteWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AssignRole(ctx, "wallet-1", "member"))
	require.NoError(t, s.AssignRole(ctx, "wallet-1", "admin"))

	role, err := s.GetRole(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
}

func TestRoleStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRole(context.Background(), "wallet-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestADPStore_SaveAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	assoc := &ADPAssociation{
		Domain:       "example.com",
		EcashAddress: "ecash:qq1234",
		VerifiedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveAssociation(ctx, assoc))

	got, err := s.GetAssociation(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, assoc.EcashAddress, got.EcashAddress)
	assert.Equal(t, assoc.VerifiedAt.Unix(), got.VerifiedAt.Unix())
}

func TestADPStore_ReverificationReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAssociation(ctx, &ADPAssociation{
		Domain: "example.com", EcashAddress: "ecash:old", VerifiedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.SaveAssociation(ctx, &ADPAssociation{
		Domain: "example.com", EcashAddress: "ecash:new", VerifiedAt: time.Now().UTC(),
	}))

	got, err := s.GetAssociation(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "ecash:new", got.EcashAddress)
}

func TestADPStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetAssociation(context.Background(), "nope.example")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
