// Package audit implements the obligation audit log: every granted access
// and metered service consumption becomes a signed, timestamped,
// append-only entry persisted through the store collaborator. Entries are
// never mutated or deleted after creation.
package audit
