// Package access implements the admission-control policy: role gating,
// token-gated bypass, balance-threshold checks, and payment-backed grants,
// with every granted operation feeding the obligation audit log.
package access
