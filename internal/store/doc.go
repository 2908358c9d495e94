// Package store provides persistence for the access gateway: the
// append-only signed audit trail, wallet role assignments, and verified
// ADP domain associations. The SQLite implementation is the default
// system of record; callers depend only on the interfaces.
package store
