package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"beauty/cmd/identity"
	"beauty/cmd/internal/auth/credential"
	"beauty/cmd/internal/auth/mfa"
	"beauty/cmd/internal/auth/ratelimit"
	"beauty/cmd/internal/auth/smsotp"
)

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "identifier and password are required")
		return
	}

	if h.cfg.EnableCaptcha {
		ok, err := h.captcha.VerifyCaptcha(r.Context(), req.Captcha, ipString(clientIP(r, h.cfg.TrustProxy)))
		if err != nil || !ok {
			writeError(w, http.StatusForbidden, "captcha_failed", "captcha verification failed")
			return
		}
	}

	user, ok := h.verifyPassword(w, r, req.Identifier, req.Password)
	if !ok {
		return
	}

	// Elevated roles must present a second factor even before they
	// finish enrollment; everyone else only when MFA is enabled.
	if user.MFAEnabled || mfa.RequiredForRole(user.Role) {
		writeJSON(w, http.StatusOK, loginResponse{Success: false, MFARequired: true})
		return
	}

	h.finishLogin(w, r, user, req.DeviceName, "auth.login.success")
}

func (h *Handler) handleLoginMFA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req loginMFARequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "identifier, password, and code are required")
		return
	}

	user, ok := h.verifyPassword(w, r, req.Identifier, req.Password)
	if !ok {
		return
	}
	if !user.MFAEnabled {
		writeError(w, http.StatusBadRequest, "mfa_not_enabled", "account has no second factor configured")
		return
	}

	now := time.Now().UTC()
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Method)) {
	case "", "totp":
		err = h.mfa.VerifyTOTP(r.Context(), now, user.ID, req.Code)
	case "backup":
		err = h.mfa.VerifyBackupCode(r.Context(), now, user.ID, req.Code)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "method must be totp or backup")
		return
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.MFAFailures.WithLabelValues(mfaMethodLabel(req.Method)).Inc()
		}
		switch {
		case errors.Is(err, mfa.ErrBackupCodeReused):
			writeError(w, http.StatusUnauthorized, "backup_code_reused", "backup code already used")
		case errors.Is(err, mfa.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "bad_request", "malformed verification code")
		case errors.Is(err, mfa.ErrNotConfigured):
			writeError(w, http.StatusBadRequest, "mfa_not_enabled", "account has no second factor configured")
		default:
			writeError(w, http.StatusUnauthorized, "mfa_failed", "verification code rejected")
		}
		h.audit(r.Context(), user.ID, "auth.login.mfa_failed", clientIP(r, h.cfg.TrustProxy), nil)
		return
	}

	h.finishLogin(w, r, user, req.DeviceName, "auth.login.success")
}

func (h *Handler) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req otpRequestRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	phone := identity.NormalizePhone(req.Phone)
	if phone == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "phone is required")
		return
	}

	if err := h.pickOTP(r).Request(r.Context(), phone); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			if h.metrics != nil {
				h.metrics.RateLimited.WithLabelValues(string(ratelimit.PurposeSMSOTP)).Inc()
			}
			writeRateLimited(w, time.Hour)
			return
		}
		h.log.Error("otp request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not send code")
		return
	}

	// Same response whether or not the phone maps to an account.
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (h *Handler) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req otpVerifyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	phone := identity.NormalizePhone(req.Phone)
	if phone == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "phone and code are required")
		return
	}

	if err := h.pickOTP(r).Verify(r.Context(), phone, req.Code); err != nil {
		switch {
		case errors.Is(err, ratelimit.ErrRateLimited):
			if h.metrics != nil {
				h.metrics.RateLimited.WithLabelValues(string(ratelimit.PurposeSMSOTPVerify)).Inc()
			}
			writeRateLimited(w, time.Hour)
		case errors.Is(err, smsotp.ErrCodeExpired):
			writeError(w, http.StatusUnauthorized, "code_expired", "code expired, request a new one")
		default:
			if h.metrics != nil {
				h.metrics.LoginFailures.WithLabelValues("otp_invalid").Inc()
			}
			writeError(w, http.StatusUnauthorized, "invalid_code", "code rejected")
		}
		return
	}

	auth, err := h.accounts.GetUserAuthByPhone(r.Context(), phone)
	if err != nil {
		// Code was valid but no account exists; do not leak which.
		writeError(w, http.StatusUnauthorized, "invalid_code", "code rejected")
		return
	}

	h.finishLogin(w, r, auth.User, req.DeviceName, "auth.login.otp_success")
}

// verifyPassword runs the credential step and writes the error response
// on failure.
func (h *Handler) verifyPassword(w http.ResponseWriter, r *http.Request, identifier, password string) (identity.User, bool) {
	ip := clientIP(r, h.cfg.TrustProxy)
	res, err := h.pickVerifier(r).Verify(r.Context(), identifier, password, ipString(ip))
	if err != nil {
		if h.metrics != nil {
			h.metrics.LoginFailures.WithLabelValues(string(res.Reason)).Inc()
		}
		switch {
		case errors.Is(err, credential.ErrAccountLocked):
			writeError(w, http.StatusForbidden, "account_locked", "account temporarily locked")
		case errors.Is(err, credential.ErrRateLimited):
			if h.metrics != nil {
				h.metrics.RateLimited.WithLabelValues(string(ratelimit.PurposeLogin)).Inc()
			}
			writeRateLimited(w, 15*time.Minute)
		case errors.Is(err, credential.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid identifier or password")
		default:
			h.log.Error("credential verify failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "login failed")
		}
		h.audit(r.Context(), "", "auth.login.failed", ip, map[string]any{"reason": string(res.Reason)})
		return identity.User{}, false
	}
	return res.User, true
}

// finishLogin issues the device session, sets cookies, and writes the
// login response.
func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, user identity.User, deviceName, auditAction string) {
	now := time.Now().UTC()
	meta := h.requestMeta(r, deviceName)

	device, issued, err := h.sessions.LoginDevice(r.Context(), now, user.ID, user.TenantID, meta)
	if err != nil {
		h.log.Error("session issue failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "internal", "could not establish session")
		return
	}

	csrf, err := h.setSessionCookies(w, issued)
	if err != nil {
		h.log.Error("cookie issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not establish session")
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsIssued.Inc()
	}
	h.audit(r.Context(), user.ID, auditAction, clientIP(r, h.cfg.TrustProxy), map[string]any{"device_id": device.ID})

	sess := toSessionResponse(issued)
	sess.CSRFToken = csrf
	u := toUserResponse(user)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: &u, Session: &sess})
}

func (h *Handler) pickOTP(r *http.Request) *smsotp.Service {
	if h.bypassRequested(r) && h.unlimitedOTP != nil {
		return h.unlimitedOTP
	}
	return h.otp
}

func mfaMethodLabel(method string) string {
	if strings.EqualFold(strings.TrimSpace(method), "backup") {
		return "backup"
	}
	return "totp"
}
