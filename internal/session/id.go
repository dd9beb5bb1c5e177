package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// generateSecureID creates a cryptographically random, URL-safe session ID
// with 256 bits of entropy.
func generateSecureID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return "sess_" + base64.RawURLEncoding.EncodeToString(b)
}
