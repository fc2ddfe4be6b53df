package aes

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hx(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// TestNISTSP80038AVector checks the first 64 bytes of AES-256-CBC against
// NIST SP 800-38A F.2.5, before PKCS#7 padding is applied (the padded
// final block is implementation-specific, so only the full-block prefix
// is compared).
func TestNISTSP80038AVector(t *testing.T) {
	var key [32]byte
	copy(key[:], hx(t, "603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4"))
	var iv [16]byte
	copy(iv[:], hx(t, "000102030405060708090a0b0c0d0e0f"))

	plaintext := hx(t,
		"6bc1bee22e409f96e93d7e117393172a"+
			"ae2d8a571e03ac9c9eb76fac45af8e51"+
			"30c81c46a35ce411e5fbc1191a0a52ef"+
			"f69f2445df4f9b17ad2b417be66c3710")

	expectedPrefix := hx(t,
		"f58c4c04d6e5f1ba779eabfb5f7bfbd6"+
			"9cfc4e967edb808d679f777bc6702c7d"+
			"39f23369a9d9bacfa530e26304231461"+
			"b2eb05e2c39be9fcda6c19078c6a9d1b")

	ciphertext, err := EncryptCBC(plaintext, key, iv)
	require.NoError(t, err)
	require.True(t, len(ciphertext) >= len(expectedPrefix))
	assert.Equal(t, expectedPrefix, ciphertext[:len(expectedPrefix)])

	// Output length invariant: non-zero multiple of 16, strictly greater
	// than the plaintext since PKCS#7 always adds a full padding block
	// when the plaintext is already block-aligned.
	assert.Equal(t, 0, len(ciphertext)%16)
	assert.Greater(t, len(ciphertext), len(plaintext))
}

// TestCBCRoundTrip covers universal invariant 6: round-trip for arbitrary
// plaintexts, including empty and non-block-aligned ones.
func TestCBCRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("01234567890123456789012345678901"))
	var iv [16]byte
	copy(iv[:], []byte("0123456789012345"))

	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("exactly 16 bytes"),
		[]byte("this plaintext is much longer than one AES block and spans several"),
	}

	for _, pt := range cases {
		ct, err := EncryptCBC(pt, key, iv)
		require.NoError(t, err)
		assert.Equal(t, 0, len(ct)%16)
		assert.NotZero(t, len(ct))

		got, err := DecryptCBC(ct, key, iv)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestCBCDecryptInvalidLength(t *testing.T) {
	var key [32]byte
	var iv [16]byte

	_, err := DecryptCBC(nil, key, iv)
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = DecryptCBC([]byte("not a multiple of 16"), key, iv)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

// TestEncryptTwiceDiffers covers universal invariant 7 at the primitive
// level: distinct IVs produce distinct ciphertexts for the same plaintext.
func TestEncryptTwiceDiffers(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("01234567890123456789012345678901"))
	plaintext := []byte("same message twice")

	var iv1, iv2 [16]byte
	copy(iv1[:], []byte("0000000000000001"))
	copy(iv2[:], []byte("0000000000000002"))

	c1, err := EncryptCBC(plaintext, key, iv1)
	require.NoError(t, err)
	c2, err := EncryptCBC(plaintext, key, iv2)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}
