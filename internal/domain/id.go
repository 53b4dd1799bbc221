package domain

import "github.com/google/uuid"

// NewID returns a time-ordered identifier. IDs generated later sort after
// earlier ones, so ascending-ID unit selection follows intake order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
