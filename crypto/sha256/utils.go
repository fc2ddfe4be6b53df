package sha256

import "crypto/sha256"

// Size is the digest length of SHA-256 in bytes.
const Size = sha256.Size

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) []byte {
	hash := sha256.New()
	hash.Write(data)
	return hash.Sum(nil)
}
