// Package mlkem wraps the two ML-KEM (FIPS 203) parameter sets the
// triple ratchet uses: ML-KEM-768 for SPQR epoch exchange and ML-KEM-1024
// for PQXDH session bootstrap.
package mlkem

import (
	"crypto/rand"

	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// Sizes for ML-KEM-768, used by SPQR chunking (HEADER_SIZE +
// ENCAPSULATION_KEY_SIZE split out of PublicKeySize, the ct2 field from
// CiphertextSize).
const (
	KEM768PublicKeySize  = mlkem768.PublicKeySize
	KEM768PrivateKeySize = mlkem768.PrivateKeySize
	KEM768CiphertextSize = mlkem768.CiphertextSize
	KEM768SharedKeySize  = mlkem768.SharedKeySize
)

// Sizes for ML-KEM-1024, used by PQXDH.
const (
	KEM1024PublicKeySize  = mlkem1024.PublicKeySize
	KEM1024PrivateKeySize = mlkem1024.PrivateKeySize
	KEM1024CiphertextSize = mlkem1024.CiphertextSize
	KEM1024SharedKeySize  = mlkem1024.SharedKeySize
)

// KeyPair768 is an ML-KEM-768 keypair in packed wire form.
type KeyPair768 struct {
	Public  [KEM768PublicKeySize]byte
	Private [KEM768PrivateKeySize]byte
}

// GenerateKeyPair768 samples a fresh ML-KEM-768 keypair.
func GenerateKeyPair768() (KeyPair768, error) {
	pk, sk, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return KeyPair768{}, err
	}
	var kp KeyPair768
	pk.Pack(kp.Public[:])
	sk.Pack(kp.Private[:])
	return kp, nil
}

// Encapsulate768 produces a fresh shared secret and its ciphertext under
// the given packed ML-KEM-768 public key.
func Encapsulate768(public []byte) (ciphertext [KEM768CiphertextSize]byte, shared [KEM768SharedKeySize]byte, err error) {
	var pk mlkem768.PublicKey
	if err = pk.Unpack(public); err != nil {
		return ciphertext, shared, err
	}
	pk.EncapsulateTo(ciphertext[:], shared[:], nil)
	return ciphertext, shared, nil
}

// Decapsulate768 recovers the shared secret from a ciphertext under the
// given packed ML-KEM-768 private key.
func Decapsulate768(private []byte, ciphertext []byte) (shared [KEM768SharedKeySize]byte, err error) {
	var sk mlkem768.PrivateKey
	if err = sk.Unpack(private); err != nil {
		return shared, err
	}
	sk.DecapsulateTo(shared[:], ciphertext)
	return shared, nil
}

// KeyPair1024Public is a packed ML-KEM-1024 public key, the form a prekey
// bundle hands out.
type KeyPair1024Public [KEM1024PublicKeySize]byte

// KeyPair1024 is an ML-KEM-1024 keypair in packed wire form.
type KeyPair1024 struct {
	Public  KeyPair1024Public
	Private [KEM1024PrivateKeySize]byte
}

// GenerateKeyPair1024 samples a fresh ML-KEM-1024 keypair.
func GenerateKeyPair1024() (KeyPair1024, error) {
	pk, sk, err := mlkem1024.GenerateKeyPair(rand.Reader)
	if err != nil {
		return KeyPair1024{}, err
	}
	var kp KeyPair1024
	pk.Pack(kp.Public[:])
	sk.Pack(kp.Private[:])
	return kp, nil
}

// Encapsulate1024 produces a fresh shared secret and its ciphertext under
// the given packed ML-KEM-1024 public key, as used by PQXDH (Alice side).
func Encapsulate1024(public []byte) (ciphertext [KEM1024CiphertextSize]byte, shared [KEM1024SharedKeySize]byte, err error) {
	var pk mlkem1024.PublicKey
	if err = pk.Unpack(public); err != nil {
		return ciphertext, shared, err
	}
	pk.EncapsulateTo(ciphertext[:], shared[:], nil)
	return ciphertext, shared, nil
}

// Decapsulate1024 recovers the shared secret from a ciphertext under the
// given packed ML-KEM-1024 private key, as used by PQXDH (Bob side).
func Decapsulate1024(private []byte, ciphertext []byte) (shared [KEM1024SharedKeySize]byte, err error) {
	var sk mlkem1024.PrivateKey
	if err = sk.Unpack(private); err != nil {
		return shared, err
	}
	sk.DecapsulateTo(shared[:], ciphertext)
	return shared, nil
}
