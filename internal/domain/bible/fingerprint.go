package bible

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the deterministic content key for a (story, end goal) pair.
func Fingerprint(story, endGoal string) string {
	sum := sha256.Sum256([]byte(story + "::" + endGoal))
	return hex.EncodeToString(sum[:])[:16]
}
