package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// UserGroup names the per-user broadcast group.
func UserGroup(userID string) string { return "user:" + userID }

// TenantGroup names the per-tenant broadcast group.
func TenantGroup(tenantID string) string { return "tenant:" + tenantID }

// Hub owns in-memory groups and routes server pushes to them. Every
// authenticated connection is subscribed to its user group and, when the
// session carries a tenant, its tenant group.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	groups map[string]*group
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:    log,
		groups: make(map[string]*group),
	}
}

// Subscribe adds the client to all of its groups.
func (h *Hub) Subscribe(client *Client) {
	if h == nil || client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, name := range client.Groups() {
		g, ok := h.groups[name]
		if !ok {
			g = newGroup(name)
			h.groups[name] = g
		}
		g.join(client)
	}
	h.log.Debug("realtime subscribe", "conn_id", client.ConnID, "user_id", client.UserID)
}

// Unsubscribe removes the client from all of its groups, pruning groups
// that become empty.
func (h *Hub) Unsubscribe(client *Client) {
	if h == nil || client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, name := range client.Groups() {
		g, ok := h.groups[name]
		if !ok {
			continue
		}
		g.leave(client.ConnID)
		if g.size() == 0 {
			delete(h.groups, name)
		}
	}
}

// Broadcast sends an envelope to every member of the named group. A
// missing group is a no-op: nobody is listening.
func (h *Hub) Broadcast(groupName string, env Envelope) {
	if h == nil {
		return
	}

	h.mu.Lock()
	g := h.groups[groupName]
	h.mu.Unlock()

	g.broadcast(env)
}

// GroupSize reports the member count of the named group.
func (h *Hub) GroupSize(groupName string) int {
	if h == nil {
		return 0
	}

	h.mu.Lock()
	g := h.groups[groupName]
	h.mu.Unlock()

	return g.size()
}

// NotifySessionRevoked pushes a session.revoked event to the user's open
// connections. It matches the session service's revocation hook
// signature so it can be wired directly.
func (h *Hub) NotifySessionRevoked(ownerID, deviceID string) {
	if h == nil || ownerID == "" {
		return
	}

	payload, _ := json.Marshal(SessionRevokedPayload{DeviceID: deviceID})
	h.Broadcast(UserGroup(ownerID), newEnvelope(TypeSessionRevoked, payload, time.Now().UTC()))
}

// NotifyGroup pushes a topic notification to an arbitrary group.
func (h *Hub) NotifyGroup(groupName, topic string, data json.RawMessage) {
	if h == nil {
		return
	}

	payload, _ := json.Marshal(NotificationPayload{Topic: topic, Data: data})
	h.Broadcast(groupName, newEnvelope(TypeNotification, payload, time.Now().UTC()))
}
