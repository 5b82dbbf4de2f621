// Package turntimer derives the visible per-turn countdown. It is a display
// approximation of the service's deadline and never ends a turn by itself.
package turntimer

import (
	"time"

	"github.com/benbjohnson/clock"
)

type Timer struct {
	clock    clock.Clock
	duration time.Duration
	anchor   time.Time
	running  bool
}

func New(c clock.Clock, duration time.Duration) *Timer {
	if c == nil {
		c = clock.New()
	}
	return &Timer{clock: c, duration: duration}
}

func (t *Timer) Duration() time.Duration { return t.duration }

// Reset restarts the countdown at the full duration.
func (t *Timer) Reset() {
	t.anchor = t.clock.Now()
	t.running = true
}

// Sync anchors the countdown on the service's turn start, used when a
// snapshot is received mid-turn (join, refresh).
func (t *Timer) Sync(turnStartedAt time.Time) {
	t.anchor = turnStartedAt
	t.running = true
}

func (t *Timer) Stop() {
	t.running = false
}

func (t *Timer) Running() bool { return t.running }

// Remaining is duration - (now - anchor) clamped to [0, duration]. A stopped
// timer reports zero.
func (t *Timer) Remaining() time.Duration {
	if !t.running {
		return 0
	}
	elapsed := t.clock.Since(t.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	return min(max(t.duration-elapsed, 0), t.duration)
}

// Expired reports whether the visible countdown has reached zero. The
// session stays active until the service says otherwise.
func (t *Timer) Expired() bool {
	return t.running && t.Remaining() == 0
}
