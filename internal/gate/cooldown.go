package gate

import "time"

// cooldownPolicy parameterizes a counter-with-cooldown: how many events are
// tolerated, over what window, and how long the block lasts once tripped.
// Both the captcha IP penalties and the submission windows share this shape;
// they differ only in thresholds and in how the window is measured.
type cooldownPolicy struct {
	Threshold int
	Window    time.Duration
	Block     time.Duration

	// Sliding measures the window from the most recent event instead of the
	// window start, so every event pushes the reset point forward. The captcha
	// failure counter is sliding; the submission window is fixed.
	Sliding bool
}

// cooldownState tracks event count and block status for a single key.
type cooldownState struct {
	count       int
	windowStart time.Time
	lastEvent   time.Time
	blocked     bool
	blockedAt   time.Time
}

// blockRemaining returns the unexpired portion of an active block, or zero
// when the state is not blocked or the block has lapsed.
func (s *cooldownState) blockRemaining(now time.Time, p cooldownPolicy) time.Duration {
	if !s.blocked {
		return 0
	}
	rem := p.Block - now.Sub(s.blockedAt)
	if rem <= 0 {
		return 0
	}
	return rem
}

// resetIfStale zeroes the counter once the counting window has elapsed.
func (s *cooldownState) resetIfStale(now time.Time, p cooldownPolicy) {
	anchor := s.windowStart
	if p.Sliding {
		anchor = s.lastEvent
	}
	if now.Sub(anchor) > p.Window {
		s.count = 0
		s.windowStart = now
	}
}

// record registers one event against the counter and trips the block when the
// threshold is reached. Returns true if this event tripped the block.
func (s *cooldownState) record(now time.Time, p cooldownPolicy) bool {
	s.resetIfStale(now, p)
	s.count++
	s.lastEvent = now
	if s.count >= p.Threshold {
		s.blocked = true
		s.blockedAt = now
		return true
	}
	return false
}
