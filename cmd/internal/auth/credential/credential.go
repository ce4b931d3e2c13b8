// Package credential implements the password step of login: identifier
// lookup, argon2id verification, failure throttling, and lockout.
//
// The verifier is deliberately uniform about failures. Unknown accounts
// run a dummy argon2id verify so response timing does not reveal whether
// the identifier exists, and every failure reads the same to the client.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"beauty/cmd/identity"
	"beauty/cmd/internal/auth/ratelimit"
)

// Reason classifies a verification outcome.
type Reason string

const (
	ReasonOK                 Reason = "ok"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonAccountLocked      Reason = "account_locked"
	ReasonRateLimited        Reason = "rate_limited"
)

var (
	// ErrInvalidCredentials covers unknown identifier and wrong password
	// alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned once the severe failure threshold is
	// crossed inside the lockout window.
	ErrAccountLocked = errors.New("account locked")

	// ErrRateLimited is returned when the login bucket is exhausted.
	ErrRateLimited = ratelimit.ErrRateLimited
)

// Config tunes the failure budgets.
type Config struct {
	// MaxAttempts failures inside Window exhaust the login bucket.
	MaxAttempts int
	Window      time.Duration

	// LockThreshold failures inside Window lock the account outright.
	// Must be >= MaxAttempts to be reachable only via the per-IP path.
	LockThreshold int
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		LockThreshold: 20,
	}
}

// Accounts is the slice of the identity store the verifier needs.
type Accounts interface {
	GetUserAuthByEmail(ctx context.Context, email string) (identity.UserAuth, error)
	GetUserAuthByPhone(ctx context.Context, phone string) (identity.UserAuth, error)
}

// Result is the outcome of a verification attempt.
type Result struct {
	User   identity.User
	Reason Reason
}

// Verifier checks identifier/password pairs.
type Verifier struct {
	cfg      Config
	accounts Accounts
	limiter  ratelimit.Limiter
	logger   *slog.Logger

	// dummyHash keeps verify timing flat for unknown identifiers.
	dummyHash string
}

// NewVerifier constructs a Verifier. The dummy hash is computed once at
// startup; if hashing fails the verifier still works, just without the
// timing shield.
func NewVerifier(cfg Config, accounts Accounts, limiter ratelimit.Limiter, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{cfg: cfg, accounts: accounts, limiter: limiter, logger: logger}
	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		v.dummyHash = hash
	}
	return v
}

// Verify runs the password step. Failures consume the account and IP
// buckets; success resets the account bucket. ip may be empty when the
// proxy headers are not trusted.
func (v *Verifier) Verify(ctx context.Context, identifier, password, ip string) (Result, error) {
	subject := canonicalIdentifier(identifier)

	accountKey := ratelimit.Key{Purpose: ratelimit.PurposeLogin, Subject: subject}
	if d, err := v.limiter.Check(ctx, accountKey, v.cfg.LockThreshold); err == nil && !d.Allowed {
		return Result{Reason: ReasonAccountLocked}, ErrAccountLocked
	}
	// A throttled attempt skips password verification but still counts,
	// so hammering a throttled account walks it into the lockout.
	if d, err := v.limiter.Check(ctx, accountKey, v.cfg.MaxAttempts); err == nil && !d.Allowed {
		return v.fail(ctx, subject, ip)
	}
	if ip != "" {
		ipKey := ratelimit.Key{Purpose: ratelimit.PurposeLoginIP, Subject: ip}
		if d, err := v.limiter.Check(ctx, ipKey, v.cfg.MaxAttempts); err == nil && !d.Allowed {
			return Result{Reason: ReasonRateLimited}, ErrRateLimited
		}
	}

	auth, lookupErr := v.lookup(ctx, identifier)
	if lookupErr != nil {
		// Timing resistance: verify against the dummy hash anyway.
		if v.dummyHash != "" {
			_, _ = identity.VerifyPassword(password, v.dummyHash)
		}
		return v.fail(ctx, subject, ip)
	}

	ok, err := identity.VerifyPassword(password, auth.PasswordHash)
	if err != nil || !ok {
		return v.fail(ctx, subject, ip)
	}

	// Success clears the account's failure budget. The IP bucket stays:
	// one cracked account must not refill an attacker's IP budget.
	if err := v.limiter.Reset(ctx, accountKey); err != nil {
		v.logger.WarnContext(ctx, "login bucket reset failed", slog.String("error", err.Error()))
	}

	return Result{User: auth.User, Reason: ReasonOK}, nil
}

// fail spends failure budget and maps the new count to a reason.
func (v *Verifier) fail(ctx context.Context, subject, ip string) (Result, error) {
	accountKey := ratelimit.Key{Purpose: ratelimit.PurposeLogin, Subject: subject}
	d, err := v.limiter.CheckAndConsume(ctx, accountKey, v.cfg.LockThreshold, v.cfg.Window)
	if err != nil {
		v.logger.WarnContext(ctx, "login bucket unavailable", slog.String("error", err.Error()))
		return Result{Reason: ReasonInvalidCredentials}, ErrInvalidCredentials
	}
	if !d.Allowed {
		return Result{Reason: ReasonAccountLocked}, ErrAccountLocked
	}
	if v.cfg.LockThreshold-d.Remaining > v.cfg.MaxAttempts {
		return Result{Reason: ReasonRateLimited}, ErrRateLimited
	}

	if ip != "" {
		ipKey := ratelimit.Key{Purpose: ratelimit.PurposeLoginIP, Subject: ip}
		if d, err := v.limiter.CheckAndConsume(ctx, ipKey, v.cfg.MaxAttempts, v.cfg.Window); err == nil && !d.Allowed {
			return Result{Reason: ReasonRateLimited}, ErrRateLimited
		}
	}

	return Result{Reason: ReasonInvalidCredentials}, ErrInvalidCredentials
}

// lookup resolves the identifier as email when it contains '@', phone
// otherwise.
func (v *Verifier) lookup(ctx context.Context, identifier string) (identity.UserAuth, error) {
	if strings.Contains(identifier, "@") {
		return v.accounts.GetUserAuthByEmail(ctx, identifier)
	}
	return v.accounts.GetUserAuthByPhone(ctx, identifier)
}

func canonicalIdentifier(identifier string) string {
	if strings.Contains(identifier, "@") {
		if norm := identity.NormalizeEmail(identifier); norm != "" {
			return norm
		}
	} else if norm := identity.NormalizePhone(identifier); norm != "" {
		return norm
	}
	return strings.ToLower(strings.TrimSpace(identifier))
}
