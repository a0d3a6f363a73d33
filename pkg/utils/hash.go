package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return hex.EncodeToString(hash[:])
}

// HashParts hashes the parts joined by a NUL separator, so ("ab", "c") and
// ("a", "bc") produce different keys.
func HashParts(parts ...string) string {
	return HashString(strings.Join(parts, "\x00"))
}
