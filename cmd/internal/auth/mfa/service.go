package mfa

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"beauty/cmd/identity"
)

// Accounts is the slice of the identity store the MFA engine needs.
type Accounts interface {
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}

// Service implements TOTP setup, verification, and backup-code handling.
type Service struct {
	issuer   string
	store    Store
	accounts Accounts
}

// NewService constructs an MFA service. issuer appears in authenticator
// apps next to the account name.
func NewService(issuer string, store Store, accounts Accounts) *Service {
	return &Service{issuer: issuer, store: store, accounts: accounts}
}

// SetupResult carries the one-time provisioning material. The secret and
// the plaintext backup codes are shown to the user exactly once.
type SetupResult struct {
	SecretBase32    string
	ProvisioningURI string
	QRCodeDataURL   string
	BackupCodes     []string
	Version         int
}

// Setup provisions (or re-provisions) TOTP for the owner. The new secret
// and backup codes replace any previous set atomically; enabling still
// requires proving possession via Enable.
func (s *Service) Setup(ctx context.Context, now time.Time, ownerID, accountName string) (SetupResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return SetupResult{}, err
	}
	if key.Secret() == "" {
		return SetupResult{}, ErrSetupFailed
	}

	qr, err := qrDataURL(key)
	if err != nil {
		return SetupResult{}, err
	}

	codes := make([]string, 0, backupCodeCount)
	hashes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := newBackupCode()
		if err != nil {
			return SetupResult{}, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hashBackupCode(code))
	}

	version, err := s.store.ReplaceSecret(ctx, now, ownerID, key.Secret(), hashes)
	if err != nil {
		return SetupResult{}, err
	}

	return SetupResult{
		SecretBase32:    key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURL:   qr,
		BackupCodes:     codes,
		Version:         version,
	}, nil
}

// Enable confirms possession of the provisioned secret and flips the
// account's MFA flag.
func (s *Service) Enable(ctx context.Context, now time.Time, ownerID, code string) error {
	if err := s.VerifyTOTP(ctx, now, ownerID, code); err != nil {
		return err
	}
	if err := s.store.ConfirmSecret(ctx, now, ownerID); err != nil {
		return err
	}
	return s.accounts.SetMFAEnabled(ctx, ownerID, true)
}

// Disable turns MFA off for the owner. The secret stays on record so a
// later re-enable goes through Setup again.
func (s *Service) Disable(ctx context.Context, ownerID string) error {
	return s.accounts.SetMFAEnabled(ctx, ownerID, false)
}

const (
	totpPeriod = 30
	totpSkew   = 1
)

// VerifyTOTP checks a six-digit code against the owner's secret. Input
// that is not six digits fails fast with ErrInvalidFormat and must not be
// counted against any attempt budget; only well-formed codes reach the
// cryptographic check.
func (s *Service) VerifyTOTP(ctx context.Context, now time.Time, ownerID, code string) error {
	if !isSixDigits(code) {
		return ErrInvalidFormat
	}

	secret, err := s.store.GetSecret(ctx, ownerID)
	if err != nil {
		return err
	}

	ok, err := totp.ValidateCustom(code, secret.SecretBase32, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return ErrVerificationFailed
	}
	return nil
}

// VerifyBackupCode consumes a backup code. Each code works exactly once;
// a replay reports ErrBackupCodeReused so callers can alert on it.
func (s *Service) VerifyBackupCode(ctx context.Context, now time.Time, ownerID, code string) error {
	if canonicalizeBackupCode(code) == "" {
		return ErrVerificationFailed
	}
	return s.store.ConsumeBackupCode(ctx, now, ownerID, hashBackupCode(code))
}

// RemainingBackupCodes reports how many codes the owner has left.
func (s *Service) RemainingBackupCodes(ctx context.Context, ownerID string) (int, error) {
	return s.store.UnusedBackupCodes(ctx, ownerID)
}

// RequiredForRole reports whether the role mandates MFA regardless of the
// user's own preference.
func RequiredForRole(role identity.Role) bool {
	return role == identity.RoleSuperAdmin
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(256, 256)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
