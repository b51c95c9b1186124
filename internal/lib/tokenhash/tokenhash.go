// Package tokenhash digests opaque bearer tokens for storage and lookup.
// The raw token is never persisted.
package tokenhash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest returns the hex-encoded SHA-256 of raw.
func Digest(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Equal compares the digest of raw with a stored digest in constant time.
func Equal(raw, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(raw)), []byte(digest)) == 1
}
