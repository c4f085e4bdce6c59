package gate

import (
	"testing"
	"time"
)

func TestCooldownState_slidingWindowAnchorsOnLastEvent(t *testing.T) {
	p := cooldownPolicy{Threshold: 3, Window: 30 * time.Minute, Block: 10 * time.Minute, Sliding: true}
	now := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	s := &cooldownState{windowStart: now}

	s.record(now, p)
	// 20 minutes later: the window anchors on the last event, so no reset.
	now = now.Add(20 * time.Minute)
	s.record(now, p)
	if s.count != 2 {
		t.Errorf("count: got %d, want 2 (sliding window must not reset)", s.count)
	}

	// 31 idle minutes: the count starts over.
	now = now.Add(31 * time.Minute)
	if s.record(now, p) {
		t.Error("first event after reset must not trip the block")
	}
	if s.count != 1 {
		t.Errorf("count after reset: got %d, want 1", s.count)
	}
}

func TestCooldownState_fixedWindowAnchorsOnWindowStart(t *testing.T) {
	p := cooldownPolicy{Threshold: 3, Window: 15 * time.Minute, Block: 10 * time.Minute}
	start := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	s := &cooldownState{windowStart: start}

	s.record(start, p)
	s.record(start.Add(14*time.Minute), p)
	// 16 minutes past windowStart: reset even though the last event is recent.
	s.record(start.Add(16*time.Minute), p)
	if s.count != 1 {
		t.Errorf("count: got %d, want 1 (fixed window resets from windowStart)", s.count)
	}
}

func TestCooldownState_blockRemaining(t *testing.T) {
	p := cooldownPolicy{Threshold: 1, Window: time.Minute, Block: 10 * time.Minute}
	now := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	s := &cooldownState{windowStart: now}

	if !s.record(now, p) {
		t.Fatal("threshold 1 must trip immediately")
	}
	if got := s.blockRemaining(now.Add(4*time.Minute), p); got != 6*time.Minute {
		t.Errorf("blockRemaining: got %v, want 6m", got)
	}
	if got := s.blockRemaining(now.Add(10*time.Minute), p); got != 0 {
		t.Errorf("lapsed block: got %v, want 0", got)
	}
}
