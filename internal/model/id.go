package model

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewWorkerID generates a lowercase ULID for use as a worker or engine identifier.
func NewWorkerID() string {
	return strings.ToLower(ulid.Make().String())
}
