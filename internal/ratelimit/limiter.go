// ABOUTME: Sliding-window request rate limiting per client identity.
// ABOUTME: Tracks request timestamps within a fixed window, oldest evicted first.

package ratelimit

import (
	"time"
)

// Default limits match the Webizen API contract: 100 requests per minute.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 100
)

// Window is a sliding-window request counter for a single client. It holds
// the timestamps of requests made within the window; timestamps older than
// the window are discarded on each call.
//
// A Window is owned by the connection that created it and is not safe for
// concurrent use. Sessions that are shared across goroutines must serialize
// access externally.
type Window struct {
	window     time.Duration
	max        int
	timestamps []time.Time
	now        func() time.Time
}

// NewWindow creates a rate-limit window with the given duration and maximum
// request count. Non-positive values fall back to the defaults.
func NewWindow(window time.Duration, max int) *Window {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	return &Window{
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// Allow reports whether another request is admitted. Timestamps outside the
// window are discarded first; if the remaining count has reached the maximum
// the request is rejected and not recorded, otherwise the current time is
// appended and the request is admitted.
func (w *Window) Allow() bool {
	now := w.now()
	w.evict(now)

	if len(w.timestamps) >= w.max {
		return false
	}

	w.timestamps = append(w.timestamps, now)
	return true
}

// Remaining returns how many requests are still admissible in the current
// window.
func (w *Window) Remaining() int {
	w.evict(w.now())
	return w.max - len(w.timestamps)
}

// evict drops timestamps older than now-window, preserving order.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}
