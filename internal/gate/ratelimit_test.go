package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/westcreek-sd/helpdesk/internal/gate"
)

func newLimiter(clk *fakeClock) *gate.SubmissionRateLimiter {
	l := gate.NewSubmissionRateLimiter(gate.RateLimiterConfig{})
	l.SetClock(clk.Now)
	return l
}

func TestCanSubmit_firstAttemptAlwaysAllowed(t *testing.T) {
	l := newLimiter(newFakeClock())
	if err := l.CanSubmit(context.Background(), "parent@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("first CanSubmit: %v", err)
	}
}

func TestCanSubmit_checkDoesNotConsumeAttempts(t *testing.T) {
	l := newLimiter(newFakeClock())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := l.CanSubmit(ctx, "parent@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("CanSubmit %d: %v", i+1, err)
		}
	}

	st, err := l.Status(ctx, "parent@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.RemainingAttempts != 3 {
		t.Errorf("remaining attempts: got %d, want 3 (checks must not consume)", st.RemainingAttempts)
	}
}

func TestCanSubmit_blocksAfterMaxRecordedSubmissions(t *testing.T) {
	l := newLimiter(newFakeClock())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CanSubmit(ctx, "parent@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("CanSubmit %d: %v", i+1, err)
		}
		if err := l.RecordSubmission(ctx, "parent@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("RecordSubmission %d: %v", i+1, err)
		}
	}

	err := l.CanSubmit(ctx, "parent@example.com", "10.0.0.1")
	var tooMany *gate.TooManyAttemptsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManyAttemptsError, got %v", err)
	}
	if tooMany.RetryAfter <= 0 {
		t.Error("RetryAfter must be positive")
	}

	st, _ := l.Status(ctx, "parent@example.com", "10.0.0.1")
	if !st.Blocked {
		t.Error("status must report blocked")
	}
	if st.CooldownRemaining <= 0 {
		t.Error("status must report remaining cooldown")
	}
}

func TestCanSubmit_cooldownExpires(t *testing.T) {
	clk := newFakeClock()
	l := newLimiter(clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordSubmission(ctx, "parent@example.com", "10.0.0.1") //nolint:errcheck
	}
	if err := l.CanSubmit(ctx, "parent@example.com", "10.0.0.1"); err == nil {
		t.Fatal("expected block after exhausting the window")
	}

	clk.Advance(10*time.Minute + time.Second)

	if err := l.CanSubmit(ctx, "parent@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("cooldown should have lapsed: %v", err)
	}
	st, _ := l.Status(ctx, "parent@example.com", "10.0.0.1")
	if st.Blocked {
		t.Error("status must not report blocked after the cooldown lapses")
	}
}

func TestCanSubmit_windowResetsWhenIdle(t *testing.T) {
	clk := newFakeClock()
	l := newLimiter(clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordSubmission(ctx, "parent@example.com", "10.0.0.1") //nolint:errcheck
	}
	clk.Advance(16 * time.Minute)

	if err := l.CanSubmit(ctx, "parent@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("expired window should allow submission: %v", err)
	}
}

func TestSubmissionKey_emailNormalized(t *testing.T) {
	l := newLimiter(newFakeClock())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordSubmission(ctx, "Parent@Example.COM", "10.0.0.1") //nolint:errcheck
	}

	// Same mailbox, different casing and whitespace — shares the budget.
	err := l.CanSubmit(ctx, "  parent@example.com ", "10.0.0.1")
	var tooMany *gate.TooManyAttemptsError
	if !errors.As(err, &tooMany) {
		t.Errorf("expected shared budget across email casings, got %v", err)
	}
}

func TestSubmissionKey_distinctIPsIndependent(t *testing.T) {
	l := newLimiter(newFakeClock())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordSubmission(ctx, "parent@example.com", "10.0.0.1") //nolint:errcheck
	}

	if err := l.CanSubmit(ctx, "parent@example.com", "10.0.0.2"); err != nil {
		t.Errorf("different IP must have its own budget: %v", err)
	}
}

func TestRetryAfterMinutes_roundsUp(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 1},
		{30 * time.Second, 1},
		{time.Minute, 1},
		{61 * time.Second, 2},
		{10 * time.Minute, 10},
	}
	for _, tc := range cases {
		if got := gate.RetryAfterMinutes(tc.d); got != tc.want {
			t.Errorf("RetryAfterMinutes(%v): got %d, want %d", tc.d, got, tc.want)
		}
	}
}
