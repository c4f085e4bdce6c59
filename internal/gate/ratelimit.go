package gate

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RateLimiterConfig tunes the per-(email, IP) submission limiter.
type RateLimiterConfig struct {
	MaxAttempts int           // recorded submissions allowed per window
	Window      time.Duration // counting window
	Cooldown    time.Duration // block imposed after the window is exhausted
}

// DefaultRateLimiterConfig returns the production defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxAttempts: 3,
		Window:      15 * time.Minute,
		Cooldown:    10 * time.Minute,
	}
}

// SubmissionRateLimiter is the in-memory SubmissionGate. Attempts are only
// consumed by RecordSubmission — CanSubmit may be called any number of times
// without shrinking the budget, so a request that fails before the ticket is
// persisted does not cost the requester an attempt.
type SubmissionRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*cooldownState
	policy  cooldownPolicy
	now     func() time.Time
}

// NewSubmissionRateLimiter creates a SubmissionRateLimiter. Zero config
// fields fall back to the defaults.
func NewSubmissionRateLimiter(cfg RateLimiterConfig) *SubmissionRateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &SubmissionRateLimiter{
		windows: make(map[string]*cooldownState),
		policy: cooldownPolicy{
			Threshold: cfg.MaxAttempts,
			Window:    cfg.Window,
			Block:     cfg.Cooldown,
		},
		now: time.Now,
	}
}

// SetClock overrides the time source. Tests use this to drive expiry.
func (l *SubmissionRateLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// submissionKey derives the composite map key. Email is normalized to lower
// case so "User@X" and "user@x" share one budget; the IP is taken verbatim.
func submissionKey(email, ip string) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + ip
}

// CanSubmit reports whether the pair may attempt a submission right now.
// It returns nil when allowed and a *TooManyAttemptsError carrying the
// remaining cooldown when the pair is blocked or has exhausted its window.
// It never consumes an attempt.
func (l *SubmissionRateLimiter) CanSubmit(_ context.Context, email, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	key := submissionKey(email, ip)
	w, ok := l.windows[key]
	if !ok {
		// First contact is always allowed.
		l.windows[key] = &cooldownState{windowStart: now, lastEvent: now}
		return nil
	}

	if w.blocked {
		if rem := w.blockRemaining(now, l.policy); rem > 0 {
			return &TooManyAttemptsError{RetryAfter: rem}
		}
		*w = cooldownState{windowStart: now, lastEvent: now}
		return nil
	}

	w.resetIfStale(now, l.policy)

	if w.count >= l.policy.Threshold {
		w.blocked = true
		w.blockedAt = now
		w.lastEvent = now
		return &TooManyAttemptsError{RetryAfter: l.policy.Block}
	}
	return nil
}

// RecordSubmission consumes one attempt for the pair. Call it only after the
// ticket has actually been persisted. The window-reset rule mirrors
// CanSubmit's, evaluated independently against the clock.
func (l *SubmissionRateLimiter) RecordSubmission(_ context.Context, email, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := submissionKey(email, ip)
	w, ok := l.windows[key]
	if !ok {
		w = &cooldownState{windowStart: now}
		l.windows[key] = w
	}
	w.resetIfStale(now, l.policy)
	w.count++
	w.lastEvent = now
	return nil
}

// Status returns a snapshot without mutating or sweeping any state, so a UI
// can show "N attempts remaining" without consuming one.
func (l *SubmissionRateLimiter) Status(_ context.Context, email, ip string) (SubmissionStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[submissionKey(email, ip)]
	if !ok {
		return SubmissionStatus{RemainingAttempts: l.policy.Threshold}, nil
	}

	if w.blocked {
		if rem := w.blockRemaining(now, l.policy); rem > 0 {
			return SubmissionStatus{Blocked: true, CooldownRemaining: rem}, nil
		}
		return SubmissionStatus{RemainingAttempts: l.policy.Threshold}, nil
	}

	count := w.count
	if now.Sub(w.windowStart) > l.policy.Window {
		count = 0
	}
	remaining := l.policy.Threshold - count
	if remaining < 0 {
		remaining = 0
	}
	return SubmissionStatus{RemainingAttempts: remaining}, nil
}

// sweepLocked drops window entries idle past the cooldown duration.
func (l *SubmissionRateLimiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.lastEvent) > l.policy.Block {
			delete(l.windows, key)
		}
	}
}
