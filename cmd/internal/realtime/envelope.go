package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Version is the companion-channel protocol version.
const Version = 1

// Envelope types.
const (
	TypeHello    = "hello"
	TypeHelloAck = "hello.ack"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeError    = "error"

	// Server pushes.
	TypeSessionRevoked = "session.revoked"
	TypeNotification   = "notification"
)

// Envelope is the wire frame for every companion-channel event.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the structural invariants of an inbound envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return errors.New("unsupported protocol version")
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing type")
	}
	return nil
}

// HelloAckPayload confirms the authenticated connection.
type HelloAckPayload struct {
	ConnID   string `json:"connId"`
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId,omitempty"`
}

// SessionRevokedPayload tells a user's open connections that a device
// lost its sessions. An empty DeviceID means all devices were revoked.
type SessionRevokedPayload struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// NotificationPayload is a free-form server push to a group.
type NotificationPayload struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload reports a protocol error to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
