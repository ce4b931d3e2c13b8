package app

import (
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// RedisURL enables the Redis rate-limit and OTP-code backends. Empty
	// means in-memory backends (dev mode, single instance only).
	RedisURL string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy: if true, BEAUTY_TOKEN_HMAC_KEY MUST be set
	// (>= 32 bytes) and refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	// CORS policy for the cookie-authenticated API surface.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BEAUTY_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BEAUTY_LOG_LEVEL", "info"),
		LogFormat: EnvString("BEAUTY_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("BEAUTY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BEAUTY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BEAUTY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BEAUTY_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("BEAUTY_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BEAUTY_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("BEAUTY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BEAUTY_DB_MIN_CONNS", 0),

		RedisURL: EnvString("BEAUTY_REDIS_URL", ""),

		ReadinessRequireDB: EnvBool("BEAUTY_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("BEAUTY_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("BEAUTY_CORS_ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("BEAUTY_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("BEAUTY_CORS_MAX_AGE_SECONDS", 600),
	}
}

// EnvCSV reads a comma-separated env var with a default.
func EnvCSV(key, def string) []string {
	raw := EnvString(key, def)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
