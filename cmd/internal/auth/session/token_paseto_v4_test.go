package session

import (
	"errors"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestManager(t *testing.T, mutate func(*Config)) AccessTokenManager {
	t.Helper()

	secret := paseto.NewV4AsymmetricSecretKey()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = secret.ExportHex()
	if mutate != nil {
		mutate(&cfg)
	}

	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	return mgr
}

func TestPasetoV4_IssueAndVerify(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(t, nil)
	now := time.Now().UTC()

	in := AccessClaims{
		UserID:    "01JAUSERUSERUSERUSERUSERUS",
		TenantID:  "tenant-1",
		SessionID: "01JASESSSESSSESSSESSSESSSE",
		DeviceID:  "01JADEVDEVDEVDEVDEVDEVDEVD",
	}
	tok, exp, err := mgr.Issue(in, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	out, err := mgr.Verify(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.UserID != in.UserID || out.SessionID != in.SessionID ||
		out.DeviceID != in.DeviceID || out.TenantID != in.TenantID {
		t.Fatalf("claims roundtrip mismatch: %+v", out)
	}
	if out.Issuer != "beauty" {
		t.Fatalf("issuer: got %q", out.Issuer)
	}
}

func TestPasetoV4_Expired(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(t, func(cfg *Config) { cfg.AccessTokenTTL = time.Minute })
	now := time.Now().UTC()

	tok, _, err := mgr.Issue(AccessClaims{UserID: "u", SessionID: "s", DeviceID: "d"}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = mgr.Verify(tok, now.Add(2*time.Minute))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for expired token, got %v", err)
	}
}

func TestPasetoV4_WrongKey(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(t, nil)
	other := newTestManager(t, nil)
	now := time.Now().UTC()

	tok, _, err := mgr.Issue(AccessClaims{UserID: "u", SessionID: "s", DeviceID: "d"}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken across keys, got %v", err)
	}
}

func TestPasetoV4_MissingDeviceClaim(t *testing.T) {
	t.Parallel()

	secret := paseto.NewV4AsymmetricSecretKey()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = secret.ExportHex()
	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}

	now := time.Now().UTC()
	tok := paseto.NewToken()
	tok.SetIssuer("beauty")
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(now.Add(time.Minute))
	_ = tok.Set("uid", "u")
	_ = tok.Set("sid", "s")

	signed := tok.V4Sign(secret, nil)
	if _, err := mgr.Verify(signed, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken without device claim, got %v", err)
	}
}

func TestNewPasetoV4PublicManager_BadKey(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = "not-hex"
	if _, err := NewPasetoV4PublicManager(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}
