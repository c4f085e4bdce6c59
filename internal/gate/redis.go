package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCaptchaGate is a CaptchaGate backed by a shared Redis instance, for
// deployments running more than one helpdesk process. Expiry is delegated to
// Redis key TTLs instead of lazy sweeps.
type RedisCaptchaGate struct {
	rdb *redis.Client
	cfg CaptchaConfig
}

// NewRedisCaptchaGate creates a RedisCaptchaGate. Zero config fields fall
// back to the defaults.
func NewRedisCaptchaGate(rdb *redis.Client, cfg CaptchaConfig) *RedisCaptchaGate {
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
	return &RedisCaptchaGate{rdb: rdb, cfg: cfg}
}

func captchaKey(id string) string   { return "hd:captcha:" + id }
func capFailKey(ip string) string   { return "hd:captcha:fail:" + ip }
func capBlockKey(ip string) string  { return "hd:captcha:block:" + ip }
func subCountKey(key string) string { return "hd:submit:count:" + key }
func subBlockKey(key string) string { return "hd:submit:block:" + key }

// Issue implements CaptchaGate.
func (g *RedisCaptchaGate) Issue(ctx context.Context, ip string) (*Challenge, error) {
	id, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate challenge id: %w", err)
	}
	code, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("generate challenge code: %w", err)
	}
	if err := g.rdb.Set(ctx, captchaKey(id), code, g.cfg.TTL).Err(); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	return &Challenge{ID: id, Code: code, IssuedAt: time.Now().UTC(), IssuerIP: ip}, nil
}

// Validate implements CaptchaGate. GETDEL consumes the challenge atomically,
// preserving the single-use invariant across processes.
func (g *RedisCaptchaGate) Validate(ctx context.Context, id, code, ip string) (bool, error) {
	rem, err := g.rdb.TTL(ctx, capBlockKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("check ip block: %w", err)
	}
	if rem > 0 {
		return false, &TooManyAttemptsError{RetryAfter: rem}
	}

	stored, err := g.rdb.GetDel(ctx, captchaKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, g.recordFailure(ctx, ip)
	}
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}

	if stored != code {
		return false, g.recordFailure(ctx, ip)
	}

	if err := g.rdb.Del(ctx, capFailKey(ip), capBlockKey(ip)).Err(); err != nil {
		return false, fmt.Errorf("clear ip penalty: %w", err)
	}
	return true, nil
}

func (g *RedisCaptchaGate) recordFailure(ctx context.Context, ip string) error {
	key := capFailKey(ip)
	n, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("record captcha failure: %w", err)
	}
	// Refreshing the TTL on every failure gives the same sliding reset window
	// as the in-memory store.
	if err := g.rdb.Expire(ctx, key, g.cfg.ResetWindow).Err(); err != nil {
		return fmt.Errorf("set failure ttl: %w", err)
	}
	if int(n) >= g.cfg.MaxFailures {
		if err := g.rdb.Set(ctx, capBlockKey(ip), 1, g.cfg.BlockFor).Err(); err != nil {
			return fmt.Errorf("block ip: %w", err)
		}
		g.rdb.Del(ctx, key)
		return &TooManyAttemptsError{RetryAfter: g.cfg.BlockFor}
	}
	return nil
}

// RedisSubmissionGate is a SubmissionGate backed by a shared Redis instance.
type RedisSubmissionGate struct {
	rdb *redis.Client
	cfg RateLimiterConfig
}

// NewRedisSubmissionGate creates a RedisSubmissionGate. Zero config fields
// fall back to the defaults.
func NewRedisSubmissionGate(rdb *redis.Client, cfg RateLimiterConfig) *RedisSubmissionGate {
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
	return &RedisSubmissionGate{rdb: rdb, cfg: cfg}
}

// CanSubmit implements SubmissionGate.
func (g *RedisSubmissionGate) CanSubmit(ctx context.Context, email, ip string) error {
	key := submissionKey(email, ip)

	rem, err := g.rdb.TTL(ctx, subBlockKey(key)).Result()
	if err != nil {
		return fmt.Errorf("check submission block: %w", err)
	}
	if rem > 0 {
		return &TooManyAttemptsError{RetryAfter: rem}
	}

	count, err := g.rdb.Get(ctx, subCountKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read submission count: %w", err)
	}
	if count >= g.cfg.MaxAttempts {
		if err := g.rdb.Set(ctx, subBlockKey(key), 1, g.cfg.Cooldown).Err(); err != nil {
			return fmt.Errorf("block submissions: %w", err)
		}
		g.rdb.Del(ctx, subCountKey(key))
		return &TooManyAttemptsError{RetryAfter: g.cfg.Cooldown}
	}
	return nil
}

// RecordSubmission implements SubmissionGate. The counting window starts at
// the first recorded submission and is fixed, matching the in-memory store.
func (g *RedisSubmissionGate) RecordSubmission(ctx context.Context, email, ip string) error {
	key := subCountKey(submissionKey(email, ip))
	n, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	if n == 1 {
		if err := g.rdb.Expire(ctx, key, g.cfg.Window).Err(); err != nil {
			return fmt.Errorf("set window ttl: %w", err)
		}
	}
	return nil
}

// Status implements SubmissionGate.
func (g *RedisSubmissionGate) Status(ctx context.Context, email, ip string) (SubmissionStatus, error) {
	key := submissionKey(email, ip)

	rem, err := g.rdb.TTL(ctx, subBlockKey(key)).Result()
	if err != nil {
		return SubmissionStatus{}, fmt.Errorf("check submission block: %w", err)
	}
	if rem > 0 {
		return SubmissionStatus{Blocked: true, CooldownRemaining: rem}, nil
	}

	count, err := g.rdb.Get(ctx, subCountKey(key)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return SubmissionStatus{}, fmt.Errorf("read submission count: %w", err)
	}
	remaining := g.cfg.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return SubmissionStatus{RemainingAttempts: remaining}, nil
}
