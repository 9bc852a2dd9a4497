// Package idgen generates the short, prefixed identifiers used for action
// items, citations, and generated responses: "<prefix>-<12 hex chars>".
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// New returns a "<prefix>-<12 hex chars>" identifier. The hex suffix is 48
// uniform-random bits; collisions are improbable but not checked.
func New(prefix string) string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms; fall back to
		// a UUID-derived suffix so New never panics or blocks.
		u := uuid.New()
		return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(u[:6]))
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b[:]))
}
