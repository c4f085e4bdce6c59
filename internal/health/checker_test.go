package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	checker := New(Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())
	checker.Register("postgres", PingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))

	// Run 3 times to hit the threshold.
	for i := 0; i < 3; i++ {
		checker.CheckAll(context.Background())
	}

	ready, detail := checker.Ready()
	if ready {
		t.Error("expected not ready after threshold failures")
	}
	if detail["postgres"] != "degraded" {
		t.Errorf("expected degraded, got %q", detail["postgres"])
	}
}

func TestCheckAll_belowThresholdStaysReady(t *testing.T) {
	checker := New(Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())
	checker.Register("postgres", PingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))

	checker.CheckAll(context.Background())
	checker.CheckAll(context.Background())

	if ready, _ := checker.Ready(); !ready {
		t.Error("two failures must not trip a threshold of three")
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	failing := true
	checker := New(Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())
	checker.Register("postgres", PingerFunc(func(context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	}))

	for i := 0; i < 3; i++ {
		checker.CheckAll(context.Background())
	}
	if ready, _ := checker.Ready(); ready {
		t.Fatal("expected degraded before recovery")
	}

	failing = false
	checker.CheckAll(context.Background())

	ready, detail := checker.Ready()
	if !ready {
		t.Error("expected ready after successful probe")
	}
	if detail["postgres"] != "ok" {
		t.Errorf("expected ok, got %q", detail["postgres"])
	}
}

func TestReady_independentDependencies(t *testing.T) {
	checker := New(Config{ProbeTimeout: time.Second, FailThreshold: 1}, zap.NewNop())
	checker.Register("postgres", PingerFunc(func(context.Context) error { return nil }))
	checker.Register("redis", PingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))

	checker.CheckAll(context.Background())

	ready, detail := checker.Ready()
	if ready {
		t.Error("one degraded dependency must fail readiness")
	}
	if detail["postgres"] != "ok" || detail["redis"] != "degraded" {
		t.Errorf("unexpected detail: %v", detail)
	}
}
