// Package smsotp implements one-time login codes delivered over SMS.
//
// Codes live in Redis under the phone number with a short TTL and are
// single use. Issuance and verification are both rate limited; the
// verification budget is per code, so a fresh code resets it.
package smsotp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"beauty/cmd/internal/auth/ratelimit"
	"beauty/cmd/internal/notify"
)

var (
	// ErrCodeExpired is returned when no live code exists for the phone.
	ErrCodeExpired = errors.New("code expired or not requested")

	// ErrVerificationFailed is returned for a wrong code.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrRateLimited mirrors the limiter's rejection.
	ErrRateLimited = ratelimit.ErrRateLimited
)

// Store persists pending codes with a TTL.
type Store interface {
	// SaveCode stores the code hash for the phone, replacing any pending
	// code and restarting the TTL.
	SaveCode(ctx context.Context, phone, codeHash string, ttl time.Duration) error

	// LoadCodeHash returns the pending hash. Returns ErrCodeExpired when
	// none is live.
	LoadCodeHash(ctx context.Context, phone string) (string, error)

	// DeleteCode removes the pending code (after success or exhaustion).
	DeleteCode(ctx context.Context, phone string) error
}

// Config tunes issuance and verification.
type Config struct {
	CodeTTL       time.Duration
	CodeDigits    int
	RequestLimit  int
	RequestWindow time.Duration
	VerifyLimit   int
}

// DefaultConfig returns the standard budget: three codes per hour, three
// tries per code, five-minute validity.
func DefaultConfig() Config {
	return Config{
		CodeTTL:       5 * time.Minute,
		CodeDigits:    6,
		RequestLimit:  3,
		RequestWindow: time.Hour,
		VerifyLimit:   3,
	}
}

// Service issues and verifies SMS login codes.
type Service struct {
	cfg     Config
	store   Store
	limiter ratelimit.Limiter
	sender  notify.Sender
}

// NewService constructs an SMS-OTP service.
func NewService(cfg Config, store Store, limiter ratelimit.Limiter, sender notify.Sender) *Service {
	return &Service{cfg: cfg, store: store, limiter: limiter, sender: sender}
}

// Request issues a fresh code for the phone and dispatches it. A new code
// replaces any pending one and resets the per-code verification budget.
func (s *Service) Request(ctx context.Context, phone string) error {
	d, err := s.limiter.CheckAndConsume(ctx,
		ratelimit.Key{Purpose: ratelimit.PurposeSMSOTP, Subject: phone},
		s.cfg.RequestLimit, s.cfg.RequestWindow)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return ErrRateLimited
	}

	code, err := newCode(s.cfg.CodeDigits)
	if err != nil {
		return err
	}
	if err := s.store.SaveCode(ctx, phone, hashCode(code), s.cfg.CodeTTL); err != nil {
		return err
	}
	if err := s.limiter.Reset(ctx, s.verifyKey(phone)); err != nil {
		return err
	}

	return s.sender.Send(ctx, notify.NewMessage(phone, "Your login code is "+code))
}

// Verify checks a submitted code. Each pending code allows a fixed number
// of tries; a correct code is consumed on the spot.
func (s *Service) Verify(ctx context.Context, phone, code string) error {
	d, err := s.limiter.CheckAndConsume(ctx, s.verifyKey(phone), s.cfg.VerifyLimit, s.cfg.CodeTTL)
	if err != nil {
		return err
	}
	if !d.Allowed {
		// Budget gone: the pending code is burned with it.
		_ = s.store.DeleteCode(ctx, phone)
		return ErrRateLimited
	}

	want, err := s.store.LoadCodeHash(ctx, phone)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(hashCode(code))) != 1 {
		return ErrVerificationFailed
	}

	if err := s.store.DeleteCode(ctx, phone); err != nil {
		return err
	}
	return s.limiter.Reset(ctx, s.verifyKey(phone))
}

func (s *Service) verifyKey(phone string) ratelimit.Key {
	return ratelimit.Key{Purpose: ratelimit.PurposeSMSOTPVerify, Subject: phone}
}

// newCode draws a uniform numeric code. rand.Int avoids modulo bias.
func newCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
