// Package gate holds the two throttle components consulted before a ticket
// is persisted: a captcha store that issues and validates short-lived
// challenge codes, and a submission rate limiter keyed on (email, IP).
// Neither depends on the other; the ticket-creation handler consults the
// captcha first, then the rate limiter.
//
// The default implementations keep all state in process memory and clean up
// lazily — expiry is checked on each call, not by a background timer — so a
// key that is never touched again lingers until the next call sweeps it.
// Redis-backed implementations of the same interfaces are available for
// multi-instance deployments.
package gate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// CaptchaGate issues human-verification challenges and validates answers.
type CaptchaGate interface {
	// Issue creates a new challenge. Issuance is always permitted; the IP is
	// recorded for bookkeeping only.
	Issue(ctx context.Context, ip string) (*Challenge, error)

	// Validate consumes the challenge identified by id (single use, even on
	// mismatch) and compares the submitted code. It returns false for a
	// wrong, expired, or unknown code, and a *TooManyAttemptsError once the
	// caller's IP has accumulated too many failures.
	Validate(ctx context.Context, id, code, ip string) (bool, error)
}

// SubmissionGate bounds how often a (email, IP) pair may create tickets.
// CanSubmit and RecordSubmission are deliberately separate: a check that is
// never followed by a successful ticket creation must not consume an attempt.
type SubmissionGate interface {
	CanSubmit(ctx context.Context, email, ip string) error
	RecordSubmission(ctx context.Context, email, ip string) error
	Status(ctx context.Context, email, ip string) (SubmissionStatus, error)
}

// SubmissionStatus is a read-only snapshot of one (email, IP) pair's budget.
type SubmissionStatus struct {
	RemainingAttempts int           `json:"remaining_attempts"`
	Blocked           bool          `json:"blocked"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// randomToken returns a hex-encoded random token of n bytes.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// randomCode returns a zero-padded 6-digit numeric challenge code.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
