// ABOUTME: Signer capability for detached audit signatures.
// ABOUTME: Polymorphic over scheme; ships an ed25519 implementation.

package audit

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Signer produces detached signatures over canonical serializations. The
// audit log is polymorphic over the scheme: SPHINCS+ or another scheme can
// be injected without touching the recorder.
type Signer interface {
	// Sign returns a detached signature over data.
	Sign(data []byte) ([]byte, error)

	// Scheme returns the signature scheme label stored with each entry.
	Scheme() string
}

// Ed25519Signer signs with an ed25519 private key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519Signer creates a signer from a 32-byte seed.
func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// NewEd25519SignerFromBase64 creates a signer from a base64-encoded seed,
// as carried in the gateway config.
func NewEd25519SignerFromBase64(encoded string) (*Ed25519Signer, error) {
	seed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding signing key: %w", err)
	}
	return NewEd25519Signer(seed)
}

// GenerateEd25519Signer creates a signer with a fresh random key. Used for
// ephemeral deployments and tests.
func GenerateEd25519Signer() (*Ed25519Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	return &Ed25519Signer{key: key}, nil
}

// Sign returns a detached ed25519 signature over data.
func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.key, data), nil
}

// Scheme returns "ed25519".
func (s *Ed25519Signer) Scheme() string { return "ed25519" }

// PublicKey returns the verification key for this signer.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}
