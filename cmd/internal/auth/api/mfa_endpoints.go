package api

import (
	"errors"
	"net/http"
	"time"

	"beauty/cmd/internal/auth/mfa"
)

func (h *Handler) handleMFASetup(w http.ResponseWriter, r *http.Request) {
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

	user, err := h.accounts.GetUserByID(r.Context(), auth.Claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		return
	}

	account := strDeref(user.Email)
	if account == "" {
		account = strDeref(user.Phone)
	}
	if account == "" {
		account = user.ID
	}

	res, err := h.mfa.Setup(r.Context(), time.Now().UTC(), user.ID, account)
	if err != nil {
		h.log.Error("mfa setup failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "internal", "could not start enrollment")
		return
	}

	h.audit(r.Context(), user.ID, "auth.mfa.setup", clientIP(r, h.cfg.TrustProxy), nil)

	writeJSON(w, http.StatusOK, mfaSetupResponse{
		Success:         true,
		Secret:          res.SecretBase32,
		ProvisioningURI: res.ProvisioningURI,
		QRCode:          res.QRCodeDataURL,
		BackupCodes:     res.BackupCodes,
	})
}

func (h *Handler) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
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

	var req mfaEnableRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if err := h.mfa.Enable(r.Context(), time.Now().UTC(), auth.Claims.UserID, req.Code); err != nil {
		if h.metrics != nil {
			h.metrics.MFAFailures.WithLabelValues("totp").Inc()
		}
		switch {
		case errors.Is(err, mfa.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "bad_request", "malformed verification code")
		case errors.Is(err, mfa.ErrNotConfigured):
			writeError(w, http.StatusConflict, "mfa_not_configured", "run setup before enabling")
		case errors.Is(err, mfa.ErrVerificationFailed):
			writeError(w, http.StatusUnauthorized, "mfa_failed", "verification code rejected")
		default:
			h.log.Error("mfa enable failed", "error", err, "user_id", auth.Claims.UserID)
			writeError(w, http.StatusInternalServerError, "internal", "could not enable second factor")
		}
		return
	}

	h.audit(r.Context(), auth.Claims.UserID, "auth.mfa.enabled", clientIP(r, h.cfg.TrustProxy), nil)
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
