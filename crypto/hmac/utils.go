package hmac

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
)

// Hash returns the HMAC-<hash function> of the data using the key.
func Hash(hash func() hash.Hash, key, data []byte) []byte {
	mac := hmac.New(hash, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// SHA256 is Hash fixed to HMAC-SHA256, used everywhere in the ratchet.
func SHA256(key, data []byte) []byte {
	return Hash(sha256.New, key, data)
}

// Equal does a constant-time comparison of two MAC values.
func Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}
