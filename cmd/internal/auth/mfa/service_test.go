package mfa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"beauty/cmd/identity"
)

type fakeAccounts struct {
	mu      sync.Mutex
	enabled map[string]bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{enabled: make(map[string]bool)}
}

func (f *fakeAccounts) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[userID] = enabled
	return nil
}

func (f *fakeAccounts) isEnabled(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[userID]
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeAccounts) {
	t.Helper()
	store := NewMemoryStore()
	accounts := newFakeAccounts()
	return NewService("beauty", store, accounts), store, accounts
}

func mustSetup(t *testing.T, svc *Service, ownerID string) SetupResult {
	t.Helper()
	res, err := svc.Setup(context.Background(), time.Now().UTC(), ownerID, ownerID+"@example.com")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return res
}

func TestSetup_ProvisioningMaterial(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	res := mustSetup(t, svc, "user-1")

	if res.SecretBase32 == "" {
		t.Fatalf("expected a secret")
	}
	if !strings.HasPrefix(res.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI: %s", res.ProvisioningURI)
	}
	if !strings.Contains(res.ProvisioningURI, "beauty") {
		t.Fatalf("issuer missing from URI: %s", res.ProvisioningURI)
	}
	if !strings.HasPrefix(res.QRCodeDataURL, "data:image/png;base64,") {
		t.Fatalf("expected PNG data URL, got %.40s", res.QRCodeDataURL)
	}
	if len(res.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(res.BackupCodes))
	}
	seen := make(map[string]bool)
	for _, code := range res.BackupCodes {
		if len(code) != 11 || code[5] != '-' {
			t.Fatalf("bad code format: %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate backup code: %q", code)
		}
		seen[code] = true
	}
	if res.Version != 1 {
		t.Fatalf("first setup should be version 1, got %d", res.Version)
	}
}

func TestEnable_FlipsAccountFlag(t *testing.T) {
	t.Parallel()

	svc, _, accounts := newTestService(t)
	res := mustSetup(t, svc, "user-1")

	now := time.Now().UTC()
	code, err := totp.GenerateCode(res.SecretBase32, now)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if err := svc.Enable(context.Background(), now, "user-1", code); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !accounts.isEnabled("user-1") {
		t.Fatalf("account flag not set")
	}
}

func TestEnable_WrongCode(t *testing.T) {
	t.Parallel()

	svc, _, accounts := newTestService(t)
	mustSetup(t, svc, "user-1")

	err := svc.Enable(context.Background(), time.Now().UTC(), "user-1", "000000")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("want ErrVerificationFailed, got %v", err)
	}
	if accounts.isEnabled("user-1") {
		t.Fatalf("account flag must not be set on failure")
	}
}

func TestVerifyTOTP_FormatGate(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	mustSetup(t, svc, "user-1")
	ctx := context.Background()
	now := time.Now().UTC()

	for _, code := range []string{"", "12345", "1234567", "12a456", "abcdef", " 12345"} {
		err := svc.VerifyTOTP(ctx, now, "user-1", code)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("code %q: want ErrInvalidFormat, got %v", code, err)
		}
	}
}

func TestVerifyTOTP_SkewWindow(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	res := mustSetup(t, svc, "user-1")
	ctx := context.Background()
	now := time.Now().UTC()

	// A code from the previous period is inside Skew=1.
	prev, err := totp.GenerateCode(res.SecretBase32, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if err := svc.VerifyTOTP(ctx, now, "user-1", prev); err != nil {
		t.Fatalf("previous-period code should verify: %v", err)
	}

	// Two periods back is outside.
	stale, err := totp.GenerateCode(res.SecretBase32, now.Add(-90*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if err := svc.VerifyTOTP(ctx, now, "user-1", stale); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("stale code: want ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyTOTP_NotConfigured(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	err := svc.VerifyTOTP(context.Background(), time.Now().UTC(), "nobody", "123456")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestVerifyBackupCode_ConsumeOnce(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	res := mustSetup(t, svc, "user-1")
	ctx := context.Background()
	now := time.Now().UTC()
	code := res.BackupCodes[0]

	if err := svc.VerifyBackupCode(ctx, now, "user-1", code); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := svc.VerifyBackupCode(ctx, now, "user-1", code); !errors.Is(err, ErrBackupCodeReused) {
		t.Fatalf("second use: want ErrBackupCodeReused, got %v", err)
	}

	n, err := svc.RemainingBackupCodes(ctx, "user-1")
	if err != nil {
		t.Fatalf("RemainingBackupCodes: %v", err)
	}
	if n != 9 {
		t.Fatalf("expected 9 remaining, got %d", n)
	}
}

func TestVerifyBackupCode_LenientInput(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	res := mustSetup(t, svc, "user-1")
	ctx := context.Background()
	now := time.Now().UTC()

	// Lowercase without the dash must still match.
	sloppy := strings.ToLower(strings.ReplaceAll(res.BackupCodes[1], "-", ""))
	if err := svc.VerifyBackupCode(ctx, now, "user-1", sloppy); err != nil {
		t.Fatalf("canonicalized input should verify: %v", err)
	}
}

func TestVerifyBackupCode_Unknown(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	mustSetup(t, svc, "user-1")

	err := svc.VerifyBackupCode(context.Background(), time.Now().UTC(), "user-1", "AAAAA-AAAAA")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("want ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyBackupCode_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	res := mustSetup(t, svc, "user-1")
	ctx := context.Background()
	now := time.Now().UTC()
	code := res.BackupCodes[0]

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.VerifyBackupCode(ctx, now, "user-1", code); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}

func TestResetup_ReplacesCodes(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := mustSetup(t, svc, "user-1")
	consumed := first.BackupCodes[0]
	unconsumed := first.BackupCodes[1]
	if err := svc.VerifyBackupCode(ctx, now, "user-1", consumed); err != nil {
		t.Fatalf("consume: %v", err)
	}

	second := mustSetup(t, svc, "user-1")
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}
	if second.SecretBase32 == first.SecretBase32 {
		t.Fatalf("re-setup must mint a fresh secret")
	}

	// Old codes are dead; the consumed one still reports reuse.
	if err := svc.VerifyBackupCode(ctx, now, "user-1", unconsumed); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("stale unconsumed code: want ErrVerificationFailed, got %v", err)
	}
	if err := svc.VerifyBackupCode(ctx, now, "user-1", consumed); !errors.Is(err, ErrBackupCodeReused) {
		t.Fatalf("stale consumed code: want ErrBackupCodeReused, got %v", err)
	}

	// New set is fully live.
	if err := svc.VerifyBackupCode(ctx, now, "user-1", second.BackupCodes[0]); err != nil {
		t.Fatalf("new code should verify: %v", err)
	}
}

func TestRequiredForRole(t *testing.T) {
	t.Parallel()

	if !RequiredForRole(identity.RoleSuperAdmin) {
		t.Fatalf("super_admin must require MFA")
	}
	for _, role := range []identity.Role{identity.RoleMember, identity.RoleStaff, identity.RoleAdmin} {
		if RequiredForRole(role) {
			t.Fatalf("role %s must not force MFA", role)
		}
	}
}
