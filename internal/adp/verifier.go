// ABOUTME: ADP domain verification via DNS TXT lookup with exponential backoff.
// ABOUTME: A missing record is a definitive answer and is never retried.

package adp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/webizen/access-gateway/internal/retry"
	"github.com/webizen/access-gateway/internal/store"
)

// RecordPrefix marks the TXT record carrying a domain's ecash address.
const RecordPrefix = "adp:hasEcashAccount="

// Verifier defaults.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 200 * time.Millisecond
)

var (
	// ErrNoRecord means the domain resolved but carries no ADP TXT record.
	// This is a definitive answer; the verifier does not retry it.
	ErrNoRecord = errors.New("no ADP record found for domain")

	// ErrLookupFailed is returned when DNS resolution kept failing
	// transiently until the retry bound was exhausted.
	ErrLookupFailed = errors.New("DNS lookup failed after retries")
)

// Resolver is the DNS lookup surface the verifier depends on.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Verifier resolves a domain's ADP TXT record to an ecash address and
// persists the verified association.
type Verifier struct {
	resolver       Resolver
	store          store.ADPStore
	maxRetries     int
	initialBackoff time.Duration
	logger         *slog.Logger

	now func() time.Time
}

// NewVerifier creates a domain verifier. A nil resolver falls back to the
// system resolver; non-positive limits fall back to the defaults.
func NewVerifier(resolver Resolver, adpStore store.ADPStore, maxRetries int, initialBackoff time.Duration, logger *slog.Logger) *Verifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if initialBackoff <= 0 {
		initialBackoff = DefaultInitialBackoff
	}
	return &Verifier{
		resolver:       resolver,
		store:          adpStore,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		logger:         logger,
		now:            time.Now,
	}
}

// VerifyDomain looks up the domain's TXT records, extracts the ecash
// address from the first ADP record, and stores the association. Transient
// DNS failures are retried with exponential backoff (initialBackoff,
// doubling per attempt); a domain that definitively has no record fails
// immediately with ErrNoRecord.
func (v *Verifier) VerifyDomain(ctx context.Context, domain string) (*store.ADPAssociation, error) {
	var address string

	policy := retry.Policy{
		MaxAttempts: v.maxRetries,
		Delay:       retry.Exponential(v.initialBackoff),
	}

	attempt := 0
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		records, err := v.resolver.LookupTXT(ctx, domain)
		if err != nil {
			if isDefinitiveMiss(err) {
				return retry.Terminal(fmt.Errorf("%w: %s", ErrNoRecord, domain))
			}
			v.logger.Warn("DNS TXT lookup failed",
				"domain", domain,
				"attempt", attempt,
				"max_retries", v.maxRetries,
				"error", err,
			)
			return err
		}

		addr, found := extractAddress(records)
		if !found {
			return retry.Terminal(fmt.Errorf("%w: %s", ErrNoRecord, domain))
		}
		address = addr
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrNoRecord), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	assoc := &store.ADPAssociation{
		Domain:       domain,
		EcashAddress: address,
		VerifiedAt:   v.now().UTC(),
	}
	if err := v.store.SaveAssociation(ctx, assoc); err != nil {
		return nil, fmt.Errorf("saving association for %s: %w", domain, err)
	}

	v.logger.Info("domain verified",
		"domain", domain,
		"ecash_address", address,
		"attempts", attempt,
	)
	return assoc, nil
}

// Association returns a previously verified association, or
// store.ErrNotFound if the domain has never been verified.
func (v *Verifier) Association(ctx context.Context, domain string) (*store.ADPAssociation, error) {
	return v.store.GetAssociation(ctx, domain)
}

// extractAddress returns the address from the first TXT record carrying
// the ADP prefix.
func extractAddress(records []string) (string, bool) {
	for _, rec := range records {
		if rest, ok := strings.CutPrefix(rec, RecordPrefix); ok {
			addr := strings.TrimSpace(rest)
			if addr != "" {
				return addr, true
			}
		}
	}
	return "", false
}

// isDefinitiveMiss reports whether a DNS error means the name (or record
// set) definitively does not exist, as opposed to a transient server or
// network failure.
func isDefinitiveMiss(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}
