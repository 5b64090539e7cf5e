package internal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewSessionID returns a fresh session lineage identifier. The lineage ID
// stays stable across refresh rotations of the same login.
func NewSessionID() string {
	return uuid.NewString()
}

// HashToken returns the hex SHA-256 digest of a refresh token string. The
// digest is the store key, so raw tokens never reach Redis.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashBindingValue digests a client binding value (IP, User-Agent) for
// storage on the session record. Empty input hashes to the zero value so
// absent bindings compare cheaply.
func HashBindingValue(value string) [32]byte {
	if value == "" {
		return [32]byte{}
	}
	return sha256.Sum256([]byte(value))
}
