package api

import (
	"errors"
	"net/http"
	"time"

	"beauty/cmd/internal/auth/ratelimit"
	"beauty/cmd/internal/auth/session"
	"beauty/cmd/security/token"
)

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	refresh, fromCookie := h.refreshTokenFromCookie(r)
	if !fromCookie {
		var req refreshRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err == nil {
			refresh = req.RefreshToken
		}
	}
	if refresh == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing refresh token")
		return
	}
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	ip := clientIP(r, h.cfg.TrustProxy)
	if !h.bypassRequested(r) && h.limiter != nil && h.cfg.RefreshPerSessionMax > 0 {
		key := ratelimit.Key{Purpose: ratelimit.PurposeRefresh, Subject: token.HashRefreshTokenHex(refresh)}
		d, err := h.limiter.CheckAndConsume(r.Context(), key, h.cfg.RefreshPerSessionMax, h.cfg.RefreshPerSessionWindow)
		if err == nil && !d.Allowed {
			if h.metrics != nil {
				h.metrics.RateLimited.WithLabelValues(string(ratelimit.PurposeRefresh)).Inc()
			}
			writeRateLimited(w, d.RetryAfter)
			return
		}
	}

	now := time.Now().UTC()
	issued, err := h.sessions.RotateRefresh(r.Context(), now, refresh, h.requestMeta(r, ""))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenReuseDetected):
			if h.metrics != nil {
				h.metrics.ReuseDetected.Inc()
			}
			h.audit(r.Context(), "", "auth.refresh.reuse_detected", ip, nil)
			h.clearSessionCookies(w)
			writeError(w, http.StatusUnauthorized, "token_reuse_detected", "refresh token reuse detected; all sessions for this device were revoked")
		case errors.Is(err, session.ErrTokenExpired):
			h.clearSessionCookies(w)
			writeError(w, http.StatusUnauthorized, "token_expired", "refresh token expired")
		case errors.Is(err, session.ErrUnauthorized):
			h.clearSessionCookies(w)
			writeError(w, http.StatusUnauthorized, "unauthorized", "refresh token rejected")
		default:
			h.log.Error("refresh rotation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "could not refresh session")
		}
		return
	}

	csrf, err := h.setSessionCookies(w, issued)
	if err != nil {
		h.log.Error("cookie issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not refresh session")
		return
	}

	if h.metrics != nil {
		h.metrics.RefreshRotations.Inc()
	}
	h.audit(r.Context(), "", "auth.refresh.success", ip, map[string]any{"session_id": issued.SessionID})

	resp := toSessionResponse(issued)
	resp.CSRFToken = csrf
	writeJSON(w, http.StatusOK, refreshResponse{Success: true, Session: resp})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	auth, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if !h.requireCSRF(w, r, auth) {
		return
	}

	now := time.Now().UTC()
	err := h.sessions.Logout(r.Context(), now, auth.Claims.UserID, auth.Claims.DeviceID)
	if err != nil && !errors.Is(err, session.ErrDeviceNotFound) {
		h.log.Error("logout failed", "error", err, "user_id", auth.Claims.UserID)
		writeError(w, http.StatusInternalServerError, "internal", "logout failed")
		return
	}

	if h.metrics != nil {
		h.metrics.Revocations.WithLabelValues(session.ReasonLogout).Inc()
	}
	h.audit(r.Context(), auth.Claims.UserID, "auth.logout", clientIP(r, h.cfg.TrustProxy), map[string]any{"device_id": auth.Claims.DeviceID})

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
