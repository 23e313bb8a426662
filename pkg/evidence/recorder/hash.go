package recorder

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaxHashSize bounds how much of a large body is hashed.
const MaxHashSize = 1024 * 1024 // 1MB

// HashContent returns the hex SHA-256 of content, or "" for empty content.
// Only the first MaxHashSize bytes are hashed.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	if len(content) > MaxHashSize {
		content = content[:MaxHashSize]
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
