package x25519

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
)

// ErrInvalidSignature is returned by Verify on any malformed or
// non-verifying signature.
var ErrInvalidSignature = errors.New("x25519: invalid signature")

// Sign produces a 64-byte XEdDSA signature over message using an X25519
// private key, per Signal's variant of the XEdDSA construction: the
// Montgomery scalar is reused directly as the Edwards signing scalar, its
// sign bit is recorded (not corrected) in the top bit of sig[63], and
// diverges from the original XEdDSA paper, which negates the scalar when
// the derived public key's sign bit is set. random, if non-nil, must be
// 64 bytes of fresh entropy; nil draws it from crypto/rand.
func Sign(priv PrivateKey, message []byte, random []byte) ([]byte, error) {
	if random == nil {
		random = make([]byte, 64)
		if _, err := rand.Read(random); err != nil {
			return nil, err
		}
	}
	if len(random) != 64 {
		return nil, errors.New("x25519: random must be 64 bytes")
	}

	a, err := scalarFromMontgomery(priv)
	if err != nil {
		return nil, err
	}

	A := new(edwards25519.Point).ScalarBaseMult(a)
	signBit := A.Bytes()[31] >> 7

	nonceHash := sha512.New()
	nonceHash.Write(a.Bytes())
	nonceHash.Write(random)
	nonceHash.Write(message)
	r, err := new(edwards25519.Scalar).SetUniformBytes(nonceHash.Sum(nil))
	if err != nil {
		return nil, err
	}

	R := new(edwards25519.Point).ScalarBaseMult(r)

	hHash := sha512.New()
	hHash.Write(R.Bytes())
	hHash.Write(A.Bytes())
	hHash.Write(message)
	h, err := new(edwards25519.Scalar).SetUniformBytes(hHash.Sum(nil))
	if err != nil {
		return nil, err
	}

	s := new(edwards25519.Scalar).Add(r, new(edwards25519.Scalar).Multiply(h, a))

	sig := make([]byte, 64)
	copy(sig[0:32], R.Bytes())
	copy(sig[32:64], s.Bytes())
	sig[63] = (sig[63] & 0x7f) | (signBit << 7)
	return sig, nil
}

// Verify checks a 64-byte XEdDSA signature produced by Sign.
func Verify(pub PublicKey, message []byte, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}

	signBit := sig[63] >> 7
	var sBytes [32]byte
	copy(sBytes[:], sig[32:64])
	sBytes[31] &= 0x7f

	s, err := new(edwards25519.Scalar).SetCanonicalBytes(sBytes[:])
	if err != nil {
		return false
	}

	A, err := pointFromMontgomery(pub, signBit)
	if err != nil {
		return false
	}

	hHash := sha512.New()
	hHash.Write(sig[0:32])
	hHash.Write(A.Bytes())
	hHash.Write(message)
	h, err := new(edwards25519.Scalar).SetUniformBytes(hHash.Sum(nil))
	if err != nil {
		return false
	}

	negH := new(edwards25519.Scalar).Negate(h)
	check := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(negH, A, s)

	var R edwards25519.Point
	if _, err := R.SetBytes(sig[0:32]); err != nil {
		return false
	}
	return check.Equal(&R) == 1
}

// scalarFromMontgomery turns a clamped X25519 private key directly into
// the Edwards scalar used for signing: the birational map between
// Curve25519 and edwards25519 fixes the scalar, only the public point's
// representation differs.
func scalarFromMontgomery(priv PrivateKey) (*edwards25519.Scalar, error) {
	clamped := priv
	Clamp(&clamped)
	return new(edwards25519.Scalar).SetBytesWithClamping(clamped[:])
}

// pointFromMontgomery recovers the Edwards point corresponding to an
// X25519 public key's u-coordinate, using signBit to pick the sign of the
// Edwards x-coordinate (exactly the information XEdDSA's signature carries
// since the Montgomery representation discards it).
func pointFromMontgomery(pub PublicKey, signBit byte) (*edwards25519.Point, error) {
	u, err := new(field.Element).SetBytes(pub[:])
	if err != nil {
		return nil, err
	}

	one := new(field.Element).One()
	numerator := new(field.Element).Subtract(u, one)   // u - 1
	denominator := new(field.Element).Add(u, one)      // u + 1
	denomInv := new(field.Element).Invert(denominator) // (u+1)^-1
	y := new(field.Element).Multiply(numerator, denomInv)

	yBytes := y.Bytes()
	yBytes[31] = (yBytes[31] & 0x7f) | (signBit << 7)

	return new(edwards25519.Point).SetBytes(yBytes)
}
