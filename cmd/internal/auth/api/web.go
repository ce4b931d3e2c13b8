package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"beauty/cmd/internal/auth/session"
)

// setSessionCookies installs the httpOnly refresh and access cookies plus
// the readable CSRF cookie. The CSRF value is also returned so it can be
// included in the response body for the double-submit header.
func (h *Handler) setSessionCookies(w http.ResponseWriter, issued session.Issued) (string, error) {
	csrf, err := newOpaqueWebToken(32)
	if err != nil {
		return "", err
	}

	h.setCookie(w, RefreshCookieName, issued.RefreshToken, issued.RefreshExp, true)
	h.setCookie(w, AccessCookieName, issued.AccessToken, issued.AccessExp, true)
	h.setCookie(w, CSRFCookieName, csrf, issued.RefreshExp, false)
	return csrf, nil
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, RefreshCookieName, true)
	h.expireCookie(w, AccessCookieName, true)
	h.expireCookie(w, CSRFCookieName, false)
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

func accessTokenFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(AccessCookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

// csrfDoubleSubmitValid checks the double-submit pair: the CSRF cookie
// must match the X-CSRF-Token header byte for byte.
func (h *Handler) csrfDoubleSubmitValid(r *http.Request) bool {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return false
	}
	cv := strings.TrimSpace(c.Value)
	hv := strings.TrimSpace(r.Header.Get(CSRFHeaderName))
	if cv == "" || hv == "" {
		return false
	}
	return secureStringEqual(cv, hv)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func newOpaqueWebToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func secureStringEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
