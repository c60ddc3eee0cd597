package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the SHA-256 hash of a token string as a hex string.
// The ledger stores only this digest: it fits a fixed-width unique index
// and a stolen database dump yields no usable credentials.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  Used as the jti claim so two
// tokens issued in the same second for the same user are still distinct
// strings; the ledger keys on the token hash and needs one row per token.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
