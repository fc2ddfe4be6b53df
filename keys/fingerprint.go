package keys

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
)

// fingerprintIterations matches the Signal app's displayed-safety-number
// stretch: cheap to verify, expensive enough to discourage brute-forcing a
// colliding identity key.
const fingerprintIterations = 5200

// Fingerprint derives a 30-digit numeric fingerprint from an identity
// public key and a local identifier (e.g. a phone number or username),
// for out-of-band safety-number comparison. It is not part of the ratchet
// itself.
func Fingerprint(identityPub x25519.PublicKey, localIdentifier []byte) ([30]int, error) {
	digest := append(append([]byte{}, identityPub[:]...), localIdentifier...)
	h := sha512.New()
	for i := 0; i < fingerprintIterations; i++ {
		h.Reset()
		if _, err := h.Write(digest); err != nil {
			return [30]int{}, err
		}
		digest = h.Sum(nil)
	}

	var chunks [30]byte
	copy(chunks[:], digest[:30])

	var result [30]int
	for i := 0; i < 6; i++ {
		chunk := chunks[i*5 : (i+1)*5]
		num := binary.BigEndian.Uint64(append([]byte{0, 0, 0}, chunk...)) % 100000
		for j := 4; j >= 0; j-- {
			result[i*5+j] = int(num % 10)
			num /= 10
		}
	}

	return result, nil
}

// CombinedFingerprint concatenates the lexicographically smaller digit
// sequence first, the way Signal orders the two halves of a safety number
// so both parties compute the same combined display string.
func CombinedFingerprint(localFp, remoteFp [30]int) [60]int {
	var combined [60]int
	if lessFingerprint(localFp, remoteFp) {
		copy(combined[:30], localFp[:])
		copy(combined[30:], remoteFp[:])
	} else {
		copy(combined[:30], remoteFp[:])
		copy(combined[30:], localFp[:])
	}
	return combined
}

func lessFingerprint(a, b [30]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
