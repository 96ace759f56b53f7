// Package identity provides the one-way payer key transform.
//
// Stored billing and payment records never retain a plaintext MSISDN; every
// phone number is reduced to a stable SHA-256 digest at the edge and all
// matching happens on digests. Callers are responsible for normalizing the
// number (country code vs leading zero) before hashing - the transform itself
// is a pure digest.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex-encoded SHA-256 digest of a raw MSISDN.
// An empty input yields an empty key, never a digest of "".
func Hash(msisdn string) string {
	if msisdn == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(msisdn))
	return hex.EncodeToString(sum[:])
}
