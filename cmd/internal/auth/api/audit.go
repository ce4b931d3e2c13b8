package api

import (
	"context"
	"encoding/json"
	"net"
	"strings"
)

// audit records a security event in beauty.audit_log. Best effort: a
// failed insert is logged, never surfaced to the caller. With no pool
// configured (dev mode) auditing is off.
func (h *Handler) audit(ctx context.Context, userID, action string, ip net.IP, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var userVal any
	if strings.TrimSpace(userID) != "" {
		userVal = userID
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal any
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			metaVal = string(b)
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO beauty.audit_log (user_id, action, created_at, ip, meta)
		VALUES ($1, $2, now(), $3, $4::jsonb)
	`, userVal, action, ipVal, metaVal)
	if err != nil {
		h.log.Error("audit insert failed", "error", err, "action", action)
	}
}
