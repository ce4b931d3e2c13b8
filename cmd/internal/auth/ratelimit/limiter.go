// Package ratelimit provides fixed-window counters for authentication
// abuse control.
//
// Limits are keyed by purpose and subject (account, IP, phone, session);
// the Redis backend is authoritative in production, the memory backend
// serves dev mode and tests.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Purposes used across the auth surface.
const (
	PurposeLogin        = "login"
	PurposeLoginIP      = "login-ip"
	PurposeSMSOTP       = "sms-otp"
	PurposeSMSOTPVerify = "sms-otp-verify"
	PurposeRefresh      = "refresh"
)

var (
	// ErrRateLimited is returned when a budget is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrBackendUnavailable wraps backend failures. Callers decide whether
	// to fail open or closed.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Key identifies one counter.
type Key struct {
	Purpose string
	Subject string
}

func (k Key) String() string {
	return fmt.Sprintf("rl:%s:%s", k.Purpose, k.Subject)
}

// Decision is the outcome of a limiter call.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the window resets; zero when Allowed.
	RetryAfter time.Duration
}

// Limiter counts hits in fixed windows.
//
// CheckAndConsume spends one unit of the budget; Check only observes it.
// Both report the same Decision shape so handlers can emit Retry-After.
type Limiter interface {
	CheckAndConsume(ctx context.Context, key Key, limit int, window time.Duration) (Decision, error)
	Check(ctx context.Context, key Key, limit int) (Decision, error)
	Reset(ctx context.Context, key Key) error
}

// NopLimiter allows everything. It backs the rate-limit bypass path used
// by test traffic in non-production environments.
type NopLimiter struct{}

func (NopLimiter) CheckAndConsume(_ context.Context, _ Key, limit int, _ time.Duration) (Decision, error) {
	return Decision{Allowed: true, Remaining: limit}, nil
}

func (NopLimiter) Check(_ context.Context, _ Key, limit int) (Decision, error) {
	return Decision{Allowed: true, Remaining: limit}, nil
}

func (NopLimiter) Reset(_ context.Context, _ Key) error { return nil }
