package gate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Challenge is one issued captcha challenge. The code stays server-side; the
// rendering channel (image, audio) receives it out of band and only the ID is
// echoed to the client.
type Challenge struct {
	ID       string
	Code     string
	IssuedAt time.Time
	IssuerIP string
}

// CaptchaConfig tunes challenge lifetime and IP failure throttling.
type CaptchaConfig struct {
	TTL         time.Duration // challenge lifetime
	MaxFailures int           // consecutive failures before an IP is blocked
	ResetWindow time.Duration // idle time after which the failure count resets
	BlockFor    time.Duration // cooldown imposed once MaxFailures is reached
}

// DefaultCaptchaConfig returns the production defaults.
func DefaultCaptchaConfig() CaptchaConfig {
	return CaptchaConfig{
		TTL:         15 * time.Minute,
		MaxFailures: 3,
		ResetWindow: 30 * time.Minute,
		BlockFor:    10 * time.Minute,
	}
}

// CaptchaStore is the in-memory CaptchaGate. Challenges are single-use: the
// first validation attempt consumes them whether or not the code matches.
// Failed validations count against the requesting IP; a successful one wipes
// the IP's failure history entirely.
type CaptchaStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	penalties  map[string]*cooldownState
	ttl        time.Duration
	policy     cooldownPolicy
	now        func() time.Time
}

// NewCaptchaStore creates a CaptchaStore. Zero config fields fall back to
// the defaults.
func NewCaptchaStore(cfg CaptchaConfig) *CaptchaStore {
	def := DefaultCaptchaConfig()
	if cfg.TTL == 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.ResetWindow == 0 {
		cfg.ResetWindow = def.ResetWindow
	}
	if cfg.BlockFor == 0 {
		cfg.BlockFor = def.BlockFor
	}
	return &CaptchaStore{
		challenges: make(map[string]*Challenge),
		penalties:  make(map[string]*cooldownState),
		ttl:        cfg.TTL,
		policy: cooldownPolicy{
			Threshold: cfg.MaxFailures,
			Window:    cfg.ResetWindow,
			Block:     cfg.BlockFor,
			Sliding:   true,
		},
		now: time.Now,
	}
}

// SetClock overrides the time source. Tests use this to drive expiry.
func (s *CaptchaStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Issue creates a new challenge for the given IP and returns it. Issuance is
// never throttled; only validation failures count against an IP.
func (s *CaptchaStore) Issue(_ context.Context, ip string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	id, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate challenge id: %w", err)
	}
	code, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("generate challenge code: %w", err)
	}

	ch := &Challenge{ID: id, Code: code, IssuedAt: now, IssuerIP: ip}
	s.challenges[id] = ch
	return ch, nil
}

// Validate checks the submitted code against the challenge identified by id.
// The challenge is deleted on the first attempt regardless of outcome. The
// comparison is exact string equality, no normalization.
func (s *CaptchaStore) Validate(_ context.Context, id, code, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if p, ok := s.penalties[ip]; ok && p.blocked {
		if rem := p.blockRemaining(now, s.policy); rem > 0 {
			return false, &TooManyAttemptsError{RetryAfter: rem}
		}
		delete(s.penalties, ip) // block lapsed
	}

	ch, ok := s.challenges[id]
	if !ok {
		// Not found, already consumed, or expired — all count as a failure.
		return false, s.recordFailureLocked(ip, now)
	}
	delete(s.challenges, id) // single use

	if ch.Code != code {
		return false, s.recordFailureLocked(ip, now)
	}

	// Success wipes the IP's failure history, not just the counter.
	delete(s.penalties, ip)
	return true, nil
}

// recordFailureLocked bumps the IP's failure count and returns a
// *TooManyAttemptsError when this failure trips the block threshold.
func (s *CaptchaStore) recordFailureLocked(ip string, now time.Time) error {
	p, ok := s.penalties[ip]
	if !ok {
		p = &cooldownState{windowStart: now}
		s.penalties[ip] = p
	}
	if p.record(now, s.policy) {
		return &TooManyAttemptsError{RetryAfter: s.policy.Block}
	}
	return nil
}

// sweepLocked drops expired challenges and penalty records whose block has
// lapsed or whose failure count would have reset anyway.
func (s *CaptchaStore) sweepLocked(now time.Time) {
	for id, ch := range s.challenges {
		if now.Sub(ch.IssuedAt) > s.ttl {
			delete(s.challenges, id)
		}
	}
	for ip, p := range s.penalties {
		if p.blocked {
			if p.blockRemaining(now, s.policy) == 0 {
				delete(s.penalties, ip)
			}
			continue
		}
		if now.Sub(p.lastEvent) > s.policy.Window {
			delete(s.penalties, ip)
		}
	}
}
