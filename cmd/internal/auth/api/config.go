package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cookie and header names of the web transport.
const (
	RefreshCookieName = "beauty_refresh_token"
	AccessCookieName  = "beauty_access_token"
	CSRFCookieName    = "beauty_csrf_token"
	CSRFHeaderName    = "X-CSRF-Token"

	// RateLimitBypassHeader disables throttling for test traffic.
	// Honored only outside production and only when enabled by config.
	RateLimitBypassHeader = "X-RateLimit-Bypass"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	Environment string

	TrustProxy   bool
	MaxBodyBytes int64

	CookieSecure   bool
	CookieDomain   string
	CookiePath     string
	CookieSameSite http.SameSite

	// RateLimitBypassEnabled allows X-RateLimit-Bypass in non-production
	// environments (integration test traffic).
	RateLimitBypassEnabled bool

	// RefreshPerSessionMax/Window throttle rotation attempts per session.
	RefreshPerSessionMax    int
	RefreshPerSessionWindow time.Duration

	EnableCaptcha bool
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Environment:             strings.TrimSpace(os.Getenv("BEAUTY_ENV")),
		TrustProxy:              envBool("BEAUTY_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:            envInt64("BEAUTY_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CookieSecure:            envBool("BEAUTY_AUTH_COOKIE_SECURE", true),
		CookieDomain:            strings.TrimSpace(os.Getenv("BEAUTY_AUTH_COOKIE_DOMAIN")),
		CookiePath:              envString("BEAUTY_AUTH_COOKIE_PATH", "/"),
		CookieSameSite:          envSameSite("BEAUTY_AUTH_COOKIE_SAMESITE", http.SameSiteLaxMode),
		RateLimitBypassEnabled:  envBool("BEAUTY_AUTH_RATE_LIMIT_BYPASS", false),
		RefreshPerSessionMax:    envInt("BEAUTY_AUTH_REFRESH_MAX", 30),
		RefreshPerSessionWindow: envDuration("BEAUTY_AUTH_REFRESH_WINDOW", time.Minute),
		EnableCaptcha:           envBool("BEAUTY_AUTH_ENABLE_CAPTCHA", false),
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

// IsProduction reports whether the API runs with production hardening.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envSameSite(key string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}
