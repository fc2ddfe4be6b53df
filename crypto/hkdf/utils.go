package hkdf

import (
	stdsha256 "crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/sha256"
)

// Derive runs RFC 5869 HKDF-<hash> over ikm with the given salt and info,
// returning exactly length bytes of output keying material. A nil or
// zero-length salt is valid per RFC 5869 (treated as a string of zeros).
func Derive(h func() hash.Hash, ikm, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	reader := hkdf.New(h, ikm, salt, info)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveSHA256 is Derive fixed to HKDF-SHA256, the only hash the
// triple-ratchet wire format uses.
func DeriveSHA256(ikm, salt, info []byte, length int) ([]byte, error) {
	return Derive(stdsha256.New, ikm, salt, info, length)
}

// KDF keeps the (hash, ikm, salt, info, buffer) call shape: it fills
// buffer with HKDF output and returns the number of bytes written. The
// ratchet and SPQR packages call Derive instead.
func KDF(h func() hash.Hash, ikm []byte, salt []byte, info []byte, buffer []byte) (int, error) {
	reader := hkdf.New(h, ikm, salt, info)
	return io.ReadFull(reader, buffer)
}

// Size is re-exported so callers need not import crypto/sha256 directly
// just to size buffers.
var Size = sha256.Size
