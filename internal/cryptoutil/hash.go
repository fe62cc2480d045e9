package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SHA256Hex returns the SHA-256 digest of data as lowercase hex. Catalog
// objects are named and verified by this form of the digest.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashEqual compares two hex digests in constant time. Always use this
// instead of == when one side comes from a fetched object or a request.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
