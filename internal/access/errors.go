// ABOUTME: Typed denial and failure errors for admission decisions.
// ABOUTME: Denial is a normal branch for callers, not an exceptional one.

package access

import "errors"

var (
	// ErrRoleMismatch means the caller lacks the required role. Denied
	// before any other check runs; no cost entry is recorded.
	ErrRoleMismatch = errors.New("required role not held")

	// ErrInvalidToken means a supplied access token failed validation
	// definitively. Implementations of the token validator return this to
	// distinguish a bad token from an unreachable token service.
	ErrInvalidToken = errors.New("invalid access token")

	// ErrInsufficientBalanceAfterRetries means the payment path was
	// required and every payment attempt failed.
	ErrInsufficientBalanceAfterRetries = errors.New("payment failed after retries")

	// ErrCollaboratorUnavailable means an external collaborator (ledger,
	// token service, store) could not be reached to make a decision.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
