package session

import (
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL, the refresh-token lifetime, clock skew
// tolerance, refresh entropy size, the PASETO v4 signing key, and the
// device-fingerprint key.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of PASETO access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL defines the refresh-token lifetime. Each rotation extends
	// the session's expiry by this much.
	RefreshTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh tokens.
	RefreshTokenBytes int

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign PASETO v4.public access tokens.
	PasetoV4SecretKeyHex string

	// FingerprintKeyHex keys the HMAC used for device-fingerprint
	// derivation. Rotating it assigns every client a fresh device row
	// (the explicit rotation policy; see DeriveFingerprint).
	FingerprintKeyHex string
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:            "beauty",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTTL:        30 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - BEAUTY_PASETO_V4_SECRET_KEY_HEX
//   - BEAUTY_DEVICE_FINGERPRINT_KEY_HEX
//
// Optional (durations must be valid Go duration strings):
//   - BEAUTY_AUTH_ISSUER
//   - BEAUTY_AUTH_ACCESS_TTL
//   - BEAUTY_AUTH_REFRESH_TTL
//   - BEAUTY_AUTH_CLOCK_SKEW
//   - BEAUTY_AUTH_REFRESH_TOKEN_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("BEAUTY_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("BEAUTY_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("BEAUTY_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	if v := os.Getenv("BEAUTY_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("BEAUTY_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	cfg.PasetoV4SecretKeyHex = os.Getenv("BEAUTY_PASETO_V4_SECRET_KEY_HEX")
	if cfg.PasetoV4SecretKeyHex == "" {
		return Config{}, ErrConfig
	}

	cfg.FingerprintKeyHex = os.Getenv("BEAUTY_DEVICE_FINGERPRINT_KEY_HEX")
	if cfg.FingerprintKeyHex == "" {
		return Config{}, ErrConfig
	}
	if key, err := hex.DecodeString(cfg.FingerprintKeyHex); err != nil || len(key) < 16 {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
