package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveFingerprint maps client signals to a stable per-device identifier.
//
// Policy (explicit, not inferred):
//   - When the client supplies an installation hint (X-Device-Id), the
//     fingerprint is HMAC(key, "hint:"+hint) — stable for the life of the
//     client's local storage, per physical device/browser profile.
//   - Otherwise it falls back to HMAC over user agent + accept-language,
//     which collides for identical browser builds on the same locale.
//     A collision means "same device": metadata is refreshed, no duplicate
//     row is created.
//   - Rotating the server key assigns every client a fresh device row on
//     next login; old rows age out as inactive.
func DeriveFingerprint(key []byte, meta RequestMeta) string {
	m := hmac.New(sha256.New, key)

	if hint := strings.TrimSpace(meta.ClientHint); hint != "" {
		m.Write([]byte("hint:"))
		m.Write([]byte(hint))
	} else {
		m.Write([]byte("ua:"))
		m.Write([]byte(strings.TrimSpace(meta.UserAgent)))
		m.Write([]byte{0})
		m.Write([]byte(strings.TrimSpace(meta.Language)))
	}

	return hex.EncodeToString(m.Sum(nil))
}
