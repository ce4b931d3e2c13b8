package realtime

import "sync"

// Client represents one connected websocket session.
//
// Send is intentionally never closed by the server so concurrent
// broadcasters cannot panic; done signals the connection goroutines to
// stop, and Close is idempotent.
type Client struct {
	ConnID   string
	UserID   string
	TenantID string
	Send     chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID, userID, tenantID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ConnID:   connID,
		UserID:   userID,
		TenantID: tenantID,
		Send:     make(chan Envelope, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Groups returns the group names this client belongs to.
func (c *Client) Groups() []string {
	out := []string{UserGroup(c.UserID)}
	if c.TenantID != "" {
		out = append(out, TenantGroup(c.TenantID))
	}
	return out
}
