// Package server implements the websocket gateway: per-connection
// sessions with sliding-window rate limits, signed message envelopes, and
// an explicit endpoint dispatch table. A malformed message gets an error
// response; only transport failures end a session.
package server
