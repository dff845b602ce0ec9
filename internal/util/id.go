package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32-character hex identifier, prefixed with
// "<prefix>_" when prefix is set. The result never contains "/", so it is
// safe as a store key segment.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_") && len(id) == len(prefix)+1+32
}
