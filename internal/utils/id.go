package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier suitable for nonces and ping tokens.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns a random identifier without dashes, safe as a single
// protocol parameter.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
