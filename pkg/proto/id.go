package proto

import "github.com/google/uuid"

// NewID returns a random identifier for events, sessions, and sync items.
func NewID() string {
	return uuid.NewString()
}
