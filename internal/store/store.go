// ABOUTME: Store interfaces and data types for access-gateway persistence.
// ABOUTME: Defines audit records, role assignments, and ADP associations.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// AuditRecord is the persisted form of a signed obligation-cost audit entry.
// Records are append-only: never updated or deleted after creation. The
// store is the system of record; the gateway keeps no authoritative copy.
type AuditRecord struct {
	EntryID   string // namespaced unique id, e.g. "urn:audit:<ms>:<seq>:<uuid>"
	WalletID  string
	Service   string
	Cost      int64 // currency minor units
	Currency  string
	Timestamp time.Time
	Signature string // base64 detached signature over the canonical serialization
	Scheme    string // signature scheme label, e.g. "ed25519"
}

// RoleAssignment maps a wallet to a role label. One role per wallet,
// last write wins.
type RoleAssignment struct {
	WalletID  string
	Role      string
	UpdatedAt time.Time
}

// ADPAssociation records a verified domain-to-address association.
type ADPAssociation struct {
	Domain       string
	EcashAddress string
	VerifiedAt   time.Time
}

// AuditStore persists signed audit entries and serves the history read path.
type AuditStore interface {
	// AppendAuditEntry inserts a new record. EntryID must be unique.
	AppendAuditEntry(ctx context.Context, rec *AuditRecord) error

	// ListAuditEntries returns up to limit records for a wallet in
	// reverse-chronological order, skipping the first offset records.
	// Used by the audit history cursor to page lazily.
	ListAuditEntries(ctx context.Context, walletID string, limit, offset int) ([]*AuditRecord, error)
}

// RoleStore persists wallet role assignments.
type RoleStore interface {
	// AssignRole sets the role for a wallet, replacing any existing one.
	AssignRole(ctx context.Context, walletID, role string) error

	// GetRole returns the wallet's role, or ErrNotFound if none assigned.
	GetRole(ctx context.Context, walletID string) (string, error)
}

// ADPStore persists verified domain associations.
type ADPStore interface {
	SaveAssociation(ctx context.Context, assoc *ADPAssociation) error
	GetAssociation(ctx context.Context, domain string) (*ADPAssociation, error)
}

// KeyStore persists the signing-key fingerprint each wallet is bound to.
// A wallet binds to the first key that signs for it; the binding never
// changes afterwards.
type KeyStore interface {
	// BindKey records the wallet's key fingerprint. Binding an already
	// bound wallet is an error.
	BindKey(ctx context.Context, walletID, fingerprint string) error

	// GetKeyFingerprint returns the bound fingerprint, or ErrNotFound.
	GetKeyFingerprint(ctx context.Context, walletID string) (string, error)
}

// Store is the full persistence surface the gateway wires up at start.
type Store interface {
	AuditStore
	RoleStore
	ADPStore
	KeyStore

	// Ping verifies the store is reachable, for health reporting.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
