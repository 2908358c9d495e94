// Package auth verifies the two trust surfaces of the gateway: SSH
// signatures over client message envelopes and JWT admin tokens gating
// role assignment.
package auth
