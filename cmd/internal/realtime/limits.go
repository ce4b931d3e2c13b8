package realtime

import "time"

// Security/performance limits for the companion channel.
const (
	// Max bytes per websocket frame read (hard limit). Inbound traffic is
	// control frames only, so this is deliberately small.
	maxFrameBytes = 8 << 10 // 8 KiB

	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
