package keys

import (
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/mlkem"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
)

// ErrMissingKyberCiphertext is returned when a v4 bundle or message is
// missing one of the paired Kyber fields.
var ErrMissingKyberCiphertext = errors.New("missing kyber prekey field")

// PreKeyBundle is what a directory hands Alice so she can start a PQXDH
// session with Bob without an interactive round trip.
type PreKeyBundle struct {
	RegistrationID uint32
	DeviceID       uint32

	PreKeyID *uint32
	PreKey   *x25519.PublicKey

	SignedPreKeyID        uint32
	SignedPreKey          x25519.PublicKey
	SignedPreKeySignature [64]byte

	IdentityKey x25519.PublicKey

	KyberPreKeyID        uint32
	KyberPreKey          mlkem.KeyPair1024Public
	KyberPreKeySignature [64]byte
}

// Verify checks both embedded signatures against the bundle's identity
// key, per spec: both signatures must verify, and in v4 the Kyber prekey
// is mandatory.
func (b PreKeyBundle) Verify() error {
	signedPrefixed := b.SignedPreKey.WithPrefix()
	if !x25519.Verify(b.IdentityKey, signedPrefixed[:], b.SignedPreKeySignature[:]) {
		return ErrSignatureValidation
	}

	kyberSigned := append([]byte{kyberPrefix}, b.KyberPreKey[:]...)
	if !x25519.Verify(b.IdentityKey, kyberSigned, b.KyberPreKeySignature[:]) {
		return ErrSignatureValidation
	}

	return nil
}
