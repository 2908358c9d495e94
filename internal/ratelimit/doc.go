// Package ratelimit implements per-client sliding-window request limiting
// for gateway connections. Each client session owns one Window; windows are
// created on connect and discarded on disconnect, so no state survives a
// process restart.
package ratelimit
