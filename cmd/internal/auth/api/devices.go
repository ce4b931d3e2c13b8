package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"beauty/cmd/internal/auth/session"
)

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	auth, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.GetUserByID(r.Context(), auth.Claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		return
	}

	// Sliding device activity; failures here never block the read.
	if err := h.sessions.TouchDevice(r.Context(), time.Now().UTC(), auth.Claims.DeviceID, h.requestMeta(r, "")); err != nil {
		h.log.Debug("device touch failed", "error", err, "device_id", auth.Claims.DeviceID)
	}

	writeJSON(w, http.StatusOK, meResponse{Success: true, User: toUserResponse(user)})
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listDevices(w, r)
	case http.MethodDelete:
		h.revokeAllDevices(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
	}
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	auth, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	listings, err := h.sessions.ListDevices(r.Context(), auth.Claims.UserID)
	if err != nil {
		h.log.Error("device listing failed", "error", err, "user_id", auth.Claims.UserID)
		writeError(w, http.StatusInternalServerError, "internal", "could not list devices")
		return
	}

	out := make([]deviceResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toDeviceResponse(l))
	}
	writeJSON(w, http.StatusOK, devicesResponse{Success: true, Devices: out})
}

// revokeAllDevices handles DELETE /api/auth/devices. With
// ?keepCurrent=true the calling device survives; otherwise every device
// goes, including the caller's.
func (h *Handler) revokeAllDevices(w http.ResponseWriter, r *http.Request) {
	auth, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if !h.requireCSRF(w, r, auth) {
		return
	}

	now := time.Now().UTC()
	keepCurrent := strings.EqualFold(r.URL.Query().Get("keepCurrent"), "true")

	current := auth.Claims.DeviceID
	if !keepCurrent {
		current = ""
	}
	if err := h.sessions.RevokeAllExceptCurrent(r.Context(), now, auth.Claims.UserID, current); err != nil {
		h.log.Error("revoke all failed", "error", err, "user_id", auth.Claims.UserID)
		writeError(w, http.StatusInternalServerError, "internal", "could not revoke devices")
		return
	}

	if h.metrics != nil {
		h.metrics.Revocations.WithLabelValues(session.ReasonRevoked).Inc()
	}
	h.audit(r.Context(), auth.Claims.UserID, "auth.devices.revoke_all", clientIP(r, h.cfg.TrustProxy), map[string]any{"keep_current": keepCurrent})

	if !keepCurrent {
		h.clearSessionCookies(w)
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (h *Handler) handleDeviceByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use DELETE")
		return
	}

	deviceID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/devices/"), "/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown device")
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
	if err := h.sessions.RevokeDevice(r.Context(), now, auth.Claims.UserID, deviceID); err != nil {
		if errors.Is(err, session.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown device")
			return
		}
		h.log.Error("device revoke failed", "error", err, "device_id", deviceID)
		writeError(w, http.StatusInternalServerError, "internal", "could not revoke device")
		return
	}

	if h.metrics != nil {
		h.metrics.Revocations.WithLabelValues(session.ReasonRevoked).Inc()
	}
	h.audit(r.Context(), auth.Claims.UserID, "auth.devices.revoke", clientIP(r, h.cfg.TrustProxy), map[string]any{"device_id": deviceID})

	if deviceID == auth.Claims.DeviceID {
		h.clearSessionCookies(w)
	}
	writeJSON(w, http.StatusOK, deviceRevokeResponse{Success: true, DeviceID: deviceID, IsActive: false})
}

func toDeviceResponse(l session.DeviceListing) deviceResponse {
	return deviceResponse{
		ID:             l.ID,
		DeviceName:     l.Name,
		UserAgent:      l.UserAgent,
		IPAddress:      ipString(l.LastIP),
		IsActive:       l.IsActive,
		LastUsedAt:     l.LastUsedAt,
		CreatedAt:      l.CreatedAt,
		ActiveSessions: l.ActiveSessions,
	}
}
