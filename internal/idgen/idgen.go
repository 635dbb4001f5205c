package idgen

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewTaskID returns a UUIDv7 identifier string.
// If UUIDv7 generation fails, it falls back to a random UUIDv4.
func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewMessageID returns a ULID string. Message ids sort by creation time,
// which keeps per-task conversation logs readable when dumped.
func NewMessageID() string {
	return ulid.Make().String()
}
