// Package x25519 wraps RFC 7748 X25519 Diffie-Hellman and the XEdDSA
// signature scheme (Signal's variant) that lets an X25519 keypair sign.
package x25519

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// PrivateKey and PublicKey are raw 32-byte Curve25519 scalars/points.
type PrivateKey [32]byte
type PublicKey [32]byte

// ErrLowOrderPoint is returned when a DH agreement's output would be the
// all-zero string, which curve25519.X25519 treats as a low-order input.
var ErrLowOrderPoint = errors.New("x25519: low-order point")

// GenerateKeyPair samples a new RFC 7748-clamped private key and its
// corresponding public key.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	var priv PrivateKey
	if _, err := rand.Read(priv[:]); err != nil {
		return priv, PublicKey{}, err
	}
	Clamp(&priv)

	pub, err := priv.Public()
	if err != nil {
		return priv, PublicKey{}, err
	}
	return priv, pub, nil
}

// Clamp applies RFC 7748 clamping to a private scalar in place.
func Clamp(priv *PrivateKey) {
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
}

// Public derives the public key belonging to priv.
func (priv PrivateKey) Public() (PublicKey, error) {
	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return PublicKey{}, err
	}
	var pub PublicKey
	copy(pub[:], pubBytes)
	return pub, nil
}

// Agreement computes the raw X25519 shared secret between priv and pub,
// rejecting low-order public keys (including the identity and the
// 0x01-prefixed low-order point) the same way curve25519.X25519 does:
// an all-zero output is treated as invalid input rather than returned.
func Agreement(priv PrivateKey, pub PublicKey) ([32]byte, error) {
	var secret [32]byte
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return secret, ErrLowOrderPoint
	}
	copy(secret[:], out)
	return secret, nil
}

// Bytes32 returns the 32 raw bytes of a public key, as used everywhere
// except inside wire messages (which prefix it with 0x05).
func (pub PublicKey) Bytes32() [32]byte {
	return [32]byte(pub)
}

// WithPrefix serializes the public key as the 33-byte wire form used in
// SignalMessage/PreKeySignalMessage fields: a 0x05 type byte followed by
// the 32-byte point.
func (pub PublicKey) WithPrefix() [33]byte {
	var out [33]byte
	out[0] = 0x05
	copy(out[1:], pub[:])
	return out
}

// ParsePrefixed parses the 33-byte 0x05-prefixed wire form of a public key.
func ParsePrefixed(b []byte) (PublicKey, error) {
	var pub PublicKey
	if len(b) != 33 || b[0] != 0x05 {
		return pub, errors.New("x25519: invalid prefixed public key")
	}
	copy(pub[:], b[1:])
	return pub, nil
}
