package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPrompt computes the SHA-256 hash of the raw request payload.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Fingerprint derives the stable cache key for a (model, strategy, prompt)
// triple: the prompt is hashed first, then the key is the hash of
// "model:strategy:promptHash". Equal inputs always produce equal keys,
// across process restarts.
func Fingerprint(model, strategy, prompt string) string {
	return fingerprintFromHash(model, strategy, HashPrompt(prompt))
}

func fingerprintFromHash(model, strategy, promptHash string) string {
	sum := sha256.Sum256([]byte(model + ":" + strategy + ":" + promptHash))
	return hex.EncodeToString(sum[:])
}
