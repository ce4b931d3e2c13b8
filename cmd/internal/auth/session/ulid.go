package session

import (
	"time"

	"beauty/cmd/identity/ids"
)

// newID mints a ULID for device and session rows. ULIDs sort by creation
// time, which keeps lineage walks cheap.
func newID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
