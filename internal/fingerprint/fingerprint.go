// Package fingerprint computes deterministic content digests.
//
// All digests are lowercase hex SHA-256. Combining functions are order
// sensitive; callers that need order independence sort their inputs first.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Separator joins parts before they are hashed by Join.
const Separator = "\n"

// Sum returns the hex digest of b.
func Sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// String returns the hex digest of s.
func String(s string) string {
	return Sum([]byte(s))
}

// Join hashes parts joined with Separator. Join(a, b) and Join(b, a)
// differ unless a == b.
func Join(parts ...string) string {
	return String(strings.Join(parts, Separator))
}
