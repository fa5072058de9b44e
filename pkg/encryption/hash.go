package encryption

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// GenerateHash returns the lowercase hex SHA-256 of data.
func GenerateHash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether hash is the SHA-256 of data. Comparison is
// case-insensitive and constant time.
func VerifyHash(data, hash string) bool {
	want := GenerateHash(data)
	got := strings.ToLower(hash)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
