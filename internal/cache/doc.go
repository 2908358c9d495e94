// Package cache provides a bounded TTL key/value cache with explicit
// eviction, used wherever the gateway memoizes collaborator results.
package cache
