package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newDevApp(t *testing.T) *App {
	t.Helper()

	// Force dev mode with ephemeral keys and in-memory backends.
	t.Setenv("BEAUTY_ENV", "test")
	t.Setenv("BEAUTY_PASETO_V4_SECRET_KEY_HEX", "")
	t.Setenv("BEAUTY_DEVICE_FINGERPRINT_KEY_HEX", "")
	t.Setenv("BEAUTY_TOKEN_HMAC_KEY", "")

	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	a, err := New(ctx, cfg, NewLogger("error", "json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNew_DevModeWiresEverything(t *testing.T) {
	a := newDevApp(t)
	if a.auth == nil || a.ws == nil || a.metrics == nil {
		t.Fatalf("incomplete wiring: %+v", a)
	}
	if a.dbEnabled || a.dbPool != nil {
		t.Fatalf("dev mode must not open a db pool")
	}
}

func TestRegisterHTTP_HealthAndReadiness(t *testing.T) {
	a := newDevApp(t)

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, nil, false, a.ws, a.auth, a.metrics)

	for _, tc := range []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusOK},
		{path: "/readyz", want: http.StatusOK},
		{path: "/metrics", want: http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s status = %d, want %d", tc.path, rec.Code, tc.want)
		}
	}
}

func TestRegisterHTTP_ReadinessRequiresDB(t *testing.T) {
	a := newDevApp(t)

	cfg := a.cfg
	cfg.ReadinessRequireDB = true

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, cfg, nil, false, a.ws, a.auth, a.metrics)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503 without db", rec.Code)
	}
}

func TestValidateSecurityConfig_RequiresHMACKey(t *testing.T) {
	t.Setenv("BEAUTY_TOKEN_HMAC_KEY", "")

	cfg := Config{RequireTokenHMAC: true}
	if err := ValidateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected error with missing HMAC key")
	}

	t.Setenv("BEAUTY_TOKEN_HMAC_KEY", "short")
	if err := ValidateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected error with short HMAC key")
	}

	t.Setenv("BEAUTY_TOKEN_HMAC_KEY", "0123456789abcdef0123456789abcdef")
	if err := ValidateSecurityConfig(cfg); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
}

func TestEnvCSV(t *testing.T) {
	t.Setenv("BEAUTY_TEST_CSV", " a , b ,, c ")
	got := EnvCSV("BEAUTY_TEST_CSV", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("EnvCSV = %v", got)
	}

	t.Setenv("BEAUTY_TEST_CSV", "")
	if got := EnvCSV("BEAUTY_TEST_CSV", "x,y"); len(got) != 2 {
		t.Fatalf("default not applied: %v", got)
	}
}
