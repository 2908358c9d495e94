// ABOUTME: SSH public key verification for signed message envelopes.
// ABOUTME: Caches positive verification results to keep the hot path cheap.

package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/webizen/access-gateway/internal/cache"
)

const (
	// VerifyCacheTTL bounds how long a positive verification result is
	// reused before the signature is checked again.
	VerifyCacheTTL = 5 * time.Minute

	// VerifyCacheSize is the maximum number of cached results.
	VerifyCacheSize = 10000
)

// ErrSignatureInvalid means the envelope signature did not verify against
// the supplied public key.
var ErrSignatureInvalid = errors.New("signature verification failed")

// SignatureVerifier checks detached SSH signatures over envelope bytes.
// Verification is pure, so positive results are cached by a digest of
// (key, message, signature); failures are never cached.
type SignatureVerifier struct {
	results *cache.Cache
}

// NewSignatureVerifier creates a verifier with a bounded result cache.
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{
		results: cache.New(VerifyCacheTTL, VerifyCacheSize),
	}
}

// Close releases the verifier's cache resources.
func (v *SignatureVerifier) Close() {
	if v.results != nil {
		v.results.Close()
	}
}

// Verify checks sigB64 (a base64 SSH wire-format signature) over message
// with the given authorized-key string. It returns the key's fingerprint
// on success and ErrSignatureInvalid (wrapped with detail) otherwise.
func (v *SignatureVerifier) Verify(pubkeyStr string, message []byte, sigB64 string) (string, error) {
	key := cacheKey(pubkeyStr, message, sigB64)
	if fp, ok := v.results.Get(key); ok {
		return fp.(string), nil
	}

	pubkey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkeyStr))
	if err != nil {
		return "", fmt.Errorf("%w: invalid public key: %w", ErrSignatureInvalid, err)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid signature encoding: %w", ErrSignatureInvalid, err)
	}

	sig := new(ssh.Signature)
	if err := ssh.Unmarshal(sigBytes, sig); err != nil {
		return "", fmt.Errorf("%w: invalid signature format: %w", ErrSignatureInvalid, err)
	}

	if err := pubkey.Verify(message, sig); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}

	fp := Fingerprint(pubkey)
	v.results.Put(key, fp)
	return fp, nil
}

// Fingerprint computes the SHA256 fingerprint of a public key as
// lowercase hex without colons.
func Fingerprint(pubkey ssh.PublicKey) string {
	hash := sha256.Sum256(pubkey.Marshal())
	return hex.EncodeToString(hash[:])
}

// cacheKey digests the full verification input so distinct messages or
// keys can never collide into a shared cache entry.
func cacheKey(pubkeyStr string, message []byte, sigB64 string) string {
	h := sha256.New()
	h.Write([]byte(pubkeyStr))
	h.Write([]byte{0})
	h.Write(message)
	h.Write([]byte{0})
	h.Write([]byte(sigB64))
	return hex.EncodeToString(h.Sum(nil))
}
