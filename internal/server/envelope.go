// ABOUTME: Wire envelope types and canonical serialization for signing.
// ABOUTME: Requests are {endpoint,payload,pubkey,signature}; responses {endpoint,payload} or {error}.

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidRequest means the message could not be parsed into a valid
// envelope or its payload failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// Envelope is an inbound client message.
type Envelope struct {
	Endpoint  string          `json:"endpoint"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Pubkey    string          `json:"pubkey,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// Response is the outbound message. Exactly one of Payload or Error is
// set: a response either carries a result or names the failure.
type Response struct {
	Endpoint string `json:"endpoint,omitempty"`
	Payload  any    `json:"payload,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CanonicalMessage builds the byte sequence a client signs: a compact
// JSON object with endpoint first, then payload. The same envelope always
// produces the same bytes, so signatures are reproducible.
func CanonicalMessage(endpoint string, payload json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"endpoint":`)

	ep, err := json.Marshal(endpoint)
	if err != nil {
		return nil, err
	}
	buf.Write(ep)

	buf.WriteString(`,"payload":`)
	if len(payload) == 0 {
		buf.WriteString("null")
	} else if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON: %w", ErrInvalidRequest, err)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
