package utils

import "github.com/google/uuid"

// NewID returns a random identifier used to correlate logs of a single connection.
func NewID() string {
	return uuid.NewString()
}
