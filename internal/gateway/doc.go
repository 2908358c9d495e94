// Package gateway assembles the access gateway: configuration in,
// running servers out. It owns component lifecycle and nothing else.
package gateway
