package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey hashes a key or key parameter so it can be logged without
// exposing the bearer value it carries.
func HashKey(key string) string {
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}

// ShortHash returns the first 12 hex characters of HashKey.
func ShortHash(key string) string {
	return HashKey(key)[:12]
}
