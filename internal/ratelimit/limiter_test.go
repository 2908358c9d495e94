// ABOUTME: Tests for the sliding-window rate limiter.
// ABOUTME: Covers the max boundary, rejection overflow, and window expiry.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock returns a now func that advances by step on each call when
// stepped manually via the returned advance func.
func fakeClock(start time.Time) (nowFn func() time.Time, advance func(d time.Duration)) {
	current := start
	return func() time.Time { return current },
		func(d time.Duration) { current = current.Add(d) }
}

func TestWindow_AllowsUpToMax(t *testing.T) {
	w := NewWindow(time.Minute, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, w.Allow(), "request %d should be admitted", i+1)
	}
	assert.False(t, w.Allow(), "request max+1 should be rejected")
}

func TestWindow_RejectionNotRecorded(t *testing.T) {
	w := NewWindow(time.Minute, 2)

	assert.True(t, w.Allow())
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())
	assert.False(t, w.Allow())
	// Rejected requests must not extend the window occupancy.
	assert.Len(t, w.timestamps, 2)
}

func TestWindow_ExpiryFreesCapacity(t *testing.T) {
	w := NewWindow(time.Minute, 2)
	now, advance := fakeClock(time.Unix(1700000000, 0))
	w.now = now

	assert.True(t, w.Allow())
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())

	advance(61 * time.Second)
	assert.True(t, w.Allow(), "window should reset after expiry")
	assert.Equal(t, 1, w.max-w.Remaining())
}

func TestWindow_PartialExpiry(t *testing.T) {
	w := NewWindow(time.Minute, 3)
	now, advance := fakeClock(time.Unix(1700000000, 0))
	w.now = now

	assert.True(t, w.Allow())
	advance(30 * time.Second)
	assert.True(t, w.Allow())
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())

	// First timestamp falls out, the later two remain.
	advance(31 * time.Second)
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())
}

func TestWindow_DefaultsApplied(t *testing.T) {
	w := NewWindow(0, 0)
	assert.Equal(t, DefaultWindow, w.window)
	assert.Equal(t, DefaultMaxRequests, w.max)
}
