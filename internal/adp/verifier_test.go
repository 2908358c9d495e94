// ABOUTME: Tests for ADP domain verification retry and record parsing.
// ABOUTME: Covers backoff growth, definitive-miss short-circuit, persistence.

package adp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webizen/access-gateway/internal/store"
)

// fakeResolver scripts one result per lookup call.
type fakeResolver struct {
	results []lookupResult
	calls   int
	times   []time.Time
}

type lookupResult struct {
	records []string
	err     error
}

func (f *fakeResolver) LookupTXT(context.Context, string) ([]string, error) {
	f.times = append(f.times, time.Now())
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		return nil, errors.New("unexpected extra lookup")
	}
	return f.results[idx].records, f.results[idx].err
}

type memADPStore struct {
	assocs map[string]*store.ADPAssociation
	err    error
}

func (m *memADPStore) SaveAssociation(_ context.Context, assoc *store.ADPAssociation) error {
	if m.err != nil {
		return m.err
	}
	if m.assocs == nil {
		m.assocs = make(map[string]*store.ADPAssociation)
	}
	m.assocs[assoc.Domain] = assoc
	return nil
}

func (m *memADPStore) GetAssociation(_ context.Context, domain string) (*store.ADPAssociation, error) {
	assoc, ok := m.assocs[domain]
	if !ok {
		return nil, store.ErrNotFound
	}
	return assoc, nil
}

func newTestVerifier(resolver Resolver, s store.ADPStore, backoff time.Duration) *Verifier {
	return NewVerifier(resolver, s, 3, backoff, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestVerifyDomain_Success(t *testing.T) {
	resolver := &fakeResolver{results: []lookupResult{
		{records: []string{"v=spf1 -all", "adp:hasEcashAccount=ecash:qq1234"}},
	}}
	mem := &memADPStore{}
	v := newTestVerifier(resolver, mem, time.Millisecond)

	assoc, err := v.VerifyDomain(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Equal(t, "example.org", assoc.Domain)
	assert.Equal(t, "ecash:qq1234", assoc.EcashAddress)
	assert.False(t, assoc.VerifiedAt.IsZero())
	assert.Equal(t, 1, resolver.calls)

	stored, err := mem.GetAssociation(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Equal(t, assoc.EcashAddress, stored.EcashAddress)
}

func TestVerifyDomain_TransientFailureRetriedWithBackoff(t *testing.T) {
	transient := &net.DNSError{Err: "server misbehaving", IsTemporary: true}
	resolver := &fakeResolver{results: []lookupResult{
		{err: transient},
		{err: transient},
		{records: []string{"adp:hasEcashAccount=ecash:qq1234"}},
	}}
	v := newTestVerifier(resolver, &memADPStore{}, 20*time.Millisecond)

	_, err := v.VerifyDomain(context.Background(), "example.org")
	require.NoError(t, err)
	require.Equal(t, 3, resolver.calls)

	// Exponential backoff: the second gap is roughly twice the first.
	gap1 := resolver.times[1].Sub(resolver.times[0])
	gap2 := resolver.times[2].Sub(resolver.times[1])
	assert.GreaterOrEqual(t, gap1, 20*time.Millisecond)
	assert.GreaterOrEqual(t, gap2, 40*time.Millisecond)
}

func TestVerifyDomain_ExhaustionReturnsLookupFailed(t *testing.T) {
	transient := errors.New("i/o timeout")
	resolver := &fakeResolver{results: []lookupResult{
		{err: transient}, {err: transient}, {err: transient},
	}}
	v := newTestVerifier(resolver, &memADPStore{}, time.Millisecond)

	_, err := v.VerifyDomain(context.Background(), "example.org")
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, 3, resolver.calls)
}

func TestVerifyDomain_NXDomainNotRetried(t *testing.T) {
	resolver := &fakeResolver{results: []lookupResult{
		{err: &net.DNSError{Err: "no such host", IsNotFound: true}},
	}}
	v := newTestVerifier(resolver, &memADPStore{}, time.Millisecond)

	_, err := v.VerifyDomain(context.Background(), "missing.example")
	assert.ErrorIs(t, err, ErrNoRecord)
	assert.Equal(t, 1, resolver.calls, "a definitive miss is never retried")
}

func TestVerifyDomain_NoMatchingRecordNotRetried(t *testing.T) {
	resolver := &fakeResolver{results: []lookupResult{
		{records: []string{"v=spf1 -all", "google-site-verification=abc"}},
	}}
	mem := &memADPStore{}
	v := newTestVerifier(resolver, mem, time.Millisecond)

	_, err := v.VerifyDomain(context.Background(), "example.org")
	assert.ErrorIs(t, err, ErrNoRecord)
	assert.Equal(t, 1, resolver.calls)
	assert.Empty(t, mem.assocs, "nothing persisted on failure")
}

func TestVerifyDomain_EmptyAddressTreatedAsMissing(t *testing.T) {
	resolver := &fakeResolver{results: []lookupResult{
		{records: []string{"adp:hasEcashAccount=  "}},
	}}
	v := newTestVerifier(resolver, &memADPStore{}, time.Millisecond)

	_, err := v.VerifyDomain(context.Background(), "example.org")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestVerifyDomain_CancellationAbandonsRetry(t *testing.T) {
	transient := errors.New("i/o timeout")
	resolver := &fakeResolver{results: []lookupResult{
		{err: transient}, {err: transient}, {err: transient},
	}}
	v := newTestVerifier(resolver, &memADPStore{}, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := v.VerifyDomain(ctx, "example.org")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation interrupts the backoff sleep")
	assert.Equal(t, 1, resolver.calls)
}

func TestVerifyDomain_SaveFailureSurfaces(t *testing.T) {
	resolver := &fakeResolver{results: []lookupResult{
		{records: []string{"adp:hasEcashAccount=ecash:qq1234"}},
	}}
	mem := &memADPStore{err: errors.New("disk full")}
	v := newTestVerifier(resolver, mem, time.Millisecond)

	_, err := v.VerifyDomain(context.Background(), "example.org")
	assert.ErrorContains(t, err, "saving association")
}

func TestAssociation_UnknownDomain(t *testing.T) {
	v := newTestVerifier(&fakeResolver{}, &memADPStore{}, time.Millisecond)

	_, err := v.Association(context.Background(), "never-verified.example")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
