// ABOUTME: Tests for canonical envelope serialization.
// ABOUTME: Signing input must be byte-stable for identical envelopes.

package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMessage_StableBytes(t *testing.T) {
	payload := json.RawMessage(`{ "walletId" : "w1",
		"cost": 42 }`)

	got, err := CanonicalMessage("/access/grant", payload)
	require.NoError(t, err)
	assert.Equal(t, `{"endpoint":"/access/grant","payload":{"walletId":"w1","cost":42}}`, string(got))

	// Whitespace differences in the raw payload collapse to the same bytes.
	again, err := CanonicalMessage("/access/grant", json.RawMessage(`{"walletId":"w1","cost":42}`))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCanonicalMessage_EmptyPayload(t *testing.T) {
	got, err := CanonicalMessage("/health", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"endpoint":"/health","payload":null}`, string(got))
}

func TestCanonicalMessage_InvalidPayload(t *testing.T) {
	_, err := CanonicalMessage("/health", json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
