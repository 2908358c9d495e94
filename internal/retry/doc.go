// Package retry provides a single bounded-retry policy shared by the
// payment engine (fixed delay) and ADP domain verification (exponential
// backoff), so the "bounded retry with differentiated error classes" idiom
// lives in one place instead of being duplicated per caller.
package retry
