package device

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hasher turns a device secret into a comparable digest. Digests are only
// ever compared, never reversed.
type Hasher interface {
	Digest(secret string) string
	Matches(secret, digest string) bool
}

// SHA256Hasher produces lowercase hex SHA-256 digests. It is deterministic so
// the same secret always yields the same 64-character digest.
type SHA256Hasher struct{}

func (SHA256Hasher) Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (h SHA256Hasher) Matches(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Digest(secret)), []byte(digest)) == 1
}
