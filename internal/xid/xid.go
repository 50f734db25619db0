package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed identifier such as "pay-3f2a9c4e1b7d4e0f8a6c2d1e5b9f0a7c".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
