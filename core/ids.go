package core

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque entity identifier.
func NewID() string { return uuid.NewString() }

// GenerateAPIKey produces a chunked uppercase hex key for company
// authentication, e.g. "B99683F3-1456CACE-...".
func GenerateAPIKey() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failing is unrecoverable for key generation
		panic(err)
	}
	s := strings.ToUpper(hex.EncodeToString(raw))
	const chunk = 8
	parts := make([]string, 0, len(s)/chunk)
	for i := 0; i < len(s); i += chunk {
		parts = append(parts, s[i:i+chunk])
	}
	return strings.Join(parts, "-")
}
