package realtime

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRandomHex returns a random hex string of length 2*nBytes, used for
// connection IDs. nBytes <= 0 defaults to 16 bytes.
func NewRandomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 16
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		// rand failure is effectively unreachable; empty string shows up
		// in logs as a broken conn ID rather than crashing the gateway.
		return ""
	}

	return hex.EncodeToString(b)
}
