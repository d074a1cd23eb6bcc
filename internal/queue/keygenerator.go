package queue

import "github.com/google/uuid"

// NewID returns a collision-free identifier for a new record. A single drop
// event can create many records in rapid succession, so ids come from a real
// UUID source rather than timestamps.
func NewID() string {
	return uuid.NewString()
}
