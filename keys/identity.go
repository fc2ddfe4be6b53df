// Package keys holds the long-lived and ephemeral key records X3DH/PQXDH
// session setup consumes: identity keys, one-time and signed prekeys, Kyber
// prekeys, and the prekey bundle a directory hands to a new correspondent.
package keys

import (
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/mlkem"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
)

// ErrSignatureValidation is returned when a signed-prekey or Kyber-prekey
// signature fails to verify under its owner's identity key.
var ErrSignatureValidation = errors.New("signature validation failed")

// IdentityKeyPair is the long-term X25519 identity a device signs prekeys
// and XEdDSA messages with.
type IdentityKeyPair struct {
	Private x25519.PrivateKey
	Public  x25519.PublicKey
}

// GenerateIdentityKeyPair creates a fresh, clamped X25519 identity.
func GenerateIdentityKeyPair() (IdentityKeyPair, error) {
	priv, pub, err := x25519.GenerateKeyPair()
	if err != nil {
		return IdentityKeyPair{}, err
	}
	return IdentityKeyPair{Private: priv, Public: pub}, nil
}

// Sign produces an XEdDSA signature over message using this identity's
// private key.
func (id IdentityKeyPair) Sign(message []byte) ([]byte, error) {
	return x25519.Sign(id.Private, message, nil)
}

// PreKey is a one-time X25519 prekey. It is created offline and removed
// from the local store after its first use in a PQXDH handshake.
type PreKey struct {
	ID      uint32
	Private x25519.PrivateKey
	Public  x25519.PublicKey
}

// GeneratePreKey creates a one-time prekey with the given id.
func GeneratePreKey(id uint32) (PreKey, error) {
	priv, pub, err := x25519.GenerateKeyPair()
	if err != nil {
		return PreKey{}, err
	}
	return PreKey{ID: id, Private: priv, Public: pub}, nil
}

// SignedPreKey is a medium-term X25519 prekey whose public key is signed
// by the owning identity.
type SignedPreKey struct {
	ID        uint32
	Private   x25519.PrivateKey
	Public    x25519.PublicKey
	Signature [64]byte
	Timestamp uint64
}

// GenerateSignedPreKey creates a signed prekey and signs its wire-prefixed
// public key (0x05 || point) with identity.
func GenerateSignedPreKey(identity IdentityKeyPair, id uint32, timestampMs uint64) (SignedPreKey, error) {
	priv, pub, err := x25519.GenerateKeyPair()
	if err != nil {
		return SignedPreKey{}, err
	}
	prefixed := pub.WithPrefix()
	sig, err := identity.Sign(prefixed[:])
	if err != nil {
		return SignedPreKey{}, err
	}
	spk := SignedPreKey{ID: id, Private: priv, Public: pub, Timestamp: timestampMs}
	copy(spk.Signature[:], sig)
	return spk, nil
}

// Verify checks the signed prekey's signature under the owner's identity
// public key.
func (spk SignedPreKey) Verify(identityPub x25519.PublicKey) error {
	prefixed := spk.Public.WithPrefix()
	if !x25519.Verify(identityPub, prefixed[:], spk.Signature[:]) {
		return ErrSignatureValidation
	}
	return nil
}

// kyberPrefix is prepended to a Kyber public key before it is signed,
// mirroring the 0x05 convention used for X25519 public keys on the wire.
const kyberPrefix = 0x08

// KyberPreKey is an ML-KEM-1024 prekey signed by the owning identity. Its
// lifecycle runs: created offline, consumed on first use, then reported to
// the Kyber prekey store via mark_used so duplicate PreKeySignalMessages
// referencing it are rejected deterministically.
type KyberPreKey struct {
	ID        uint32
	KeyPair   mlkem.KeyPair1024
	Signature [64]byte
	Timestamp uint64
}

// GenerateKyberPreKey creates a Kyber prekey and signs its prefixed public
// key with identity.
func GenerateKyberPreKey(identity IdentityKeyPair, id uint32, timestampMs uint64) (KyberPreKey, error) {
	kp, err := mlkem.GenerateKeyPair1024()
	if err != nil {
		return KyberPreKey{}, err
	}
	signed := append([]byte{kyberPrefix}, kp.Public[:]...)
	sig, err := identity.Sign(signed)
	if err != nil {
		return KyberPreKey{}, err
	}
	kpk := KyberPreKey{ID: id, KeyPair: kp, Timestamp: timestampMs}
	copy(kpk.Signature[:], sig)
	return kpk, nil
}

// Verify checks the Kyber prekey's signature under the owner's identity
// public key.
func (kpk KyberPreKey) Verify(identityPub x25519.PublicKey) error {
	signed := append([]byte{kyberPrefix}, kpk.KeyPair.Public[:]...)
	if !x25519.Verify(identityPub, signed, kpk.Signature[:]) {
		return ErrSignatureValidation
	}
	return nil
}
