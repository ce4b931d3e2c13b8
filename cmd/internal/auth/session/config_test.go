package session

import (
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const testFingerprintKeyHex = "000102030405060708090a0b0c0d0e0f"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("BEAUTY_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("BEAUTY_DEVICE_FINGERPRINT_KEY_HEX", testFingerprintKeyHex)
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "beauty" {
		t.Fatalf("issuer default: got %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access TTL default: got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("refresh TTL default: got %v", cfg.RefreshTTL)
	}
	if cfg.RefreshTokenBytes != 32 {
		t.Fatalf("refresh bytes default: got %d", cfg.RefreshTokenBytes)
	}
}

func TestLoadConfigFromEnv_MissingSecretKey(t *testing.T) {
	t.Setenv("BEAUTY_PASETO_V4_SECRET_KEY_HEX", "")
	t.Setenv("BEAUTY_DEVICE_FINGERPRINT_KEY_HEX", testFingerprintKeyHex)
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_MissingFingerprintKey(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("BEAUTY_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("BEAUTY_DEVICE_FINGERPRINT_KEY_HEX", "")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing fingerprint key, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortFingerprintKey(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("BEAUTY_PASETO_V4_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("BEAUTY_DEVICE_FINGERPRINT_KEY_HEX", "0011")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for short fingerprint key, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BEAUTY_AUTH_ACCESS_TTL", "-5m")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidRefreshTokenBytes(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BEAUTY_AUTH_REFRESH_TOKEN_BYTES", "16")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for small refresh bytes, got %v", err)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BEAUTY_AUTH_ISSUER", "beauty-stage")
	t.Setenv("BEAUTY_AUTH_ACCESS_TTL", "5m")
	t.Setenv("BEAUTY_AUTH_REFRESH_TTL", "168h")
	t.Setenv("BEAUTY_AUTH_REFRESH_TOKEN_BYTES", "48")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "beauty-stage" || cfg.AccessTokenTTL != 5*time.Minute ||
		cfg.RefreshTTL != 168*time.Hour || cfg.RefreshTokenBytes != 48 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}
