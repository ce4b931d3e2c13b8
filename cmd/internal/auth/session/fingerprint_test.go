package session

import (
	"net"
	"testing"
)

func TestDeriveFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	meta := RequestMeta{UserAgent: "Firefox/131.0", Language: "en-US"}

	a := DeriveFingerprint(key, meta)
	b := DeriveFingerprint(key, meta)
	if a != b {
		t.Fatalf("fingerprint must be deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestDeriveFingerprint_ClientHintWins(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	withHint := RequestMeta{UserAgent: "Firefox/131.0", ClientHint: "install-aaaa"}
	otherUA := RequestMeta{UserAgent: "Safari/18.0", ClientHint: "install-aaaa"}

	if DeriveFingerprint(key, withHint) != DeriveFingerprint(key, otherUA) {
		t.Fatalf("same client hint must pin the same device regardless of UA")
	}
}

func TestDeriveFingerprint_SignalsSeparated(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	a := RequestMeta{UserAgent: "Firefox", Language: "en-US"}
	b := RequestMeta{UserAgent: "Firefoxen", Language: "-US"}
	if DeriveFingerprint(key, a) == DeriveFingerprint(key, b) {
		t.Fatalf("field boundaries must not be ambiguous")
	}
}

func TestDeriveFingerprint_IPDoesNotMatter(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	a := RequestMeta{UserAgent: "Firefox/131.0", IP: net.ParseIP("203.0.113.7")}
	b := RequestMeta{UserAgent: "Firefox/131.0", IP: net.ParseIP("198.51.100.9")}
	if DeriveFingerprint(key, a) != DeriveFingerprint(key, b) {
		t.Fatalf("roaming clients must keep their device identity")
	}
}

func TestDeriveFingerprint_KeyRotation(t *testing.T) {
	t.Parallel()

	meta := RequestMeta{UserAgent: "Firefox/131.0"}
	if DeriveFingerprint([]byte("0123456789abcdef"), meta) == DeriveFingerprint([]byte("fedcba9876543210"), meta) {
		t.Fatalf("rotating the key must rotate every fingerprint")
	}
}
