package util

import (
	"crypto/subtle"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lexicographically sortable unique identifier.
func NewID() string {
	return strings.ToLower(ulid.Make().String())
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Truncate shortens s for logging.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
