// Package fingerprint computes deterministic content fingerprints for
// evidence payloads.
//
// Two semantically identical submissions from the same tenant must hash
// identically regardless of superficial formatting differences, so the
// payload is normalized before hashing: Unicode is folded to NFC, runs of
// whitespace collapse to a single space, and leading/trailing whitespace is
// dropped. The tenant id salts the hash so identical payloads from
// different tenants never collide into one fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Compute returns the fingerprint for an evidence payload scoped to a
// tenant. The result is a lowercase hex SHA-256 digest.
func Compute(tenantID string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0}) // separator so tenant/payload boundaries are unambiguous
	h.Write([]byte(Normalize(payload)))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize returns the canonical form of a payload used for hashing:
// NFC-normalized, whitespace-collapsed, trimmed. Case is preserved:
// "Enabled" and "enabled" are different evidence.
func Normalize(payload []byte) string {
	s := norm.NFC.String(string(payload))

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
