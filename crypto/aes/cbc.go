// Package aes wraps AES-256 in the two modes the triple ratchet needs:
// CBC with PKCS#7 padding for message bodies, and GCM-SIV for the
// primitive the spec fixes but the ratchet chain itself does not invoke
// per message.
package aes

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// ErrInvalidLength is returned when ciphertext is empty or not a multiple
// of the AES block size, or when its PKCS#7 padding is invalid.
var ErrInvalidLength = errors.New("aes: ciphertext length invalid")

// EncryptCBC encrypts plaintext under AES-256-CBC with PKCS#7 padding.
// The output is always a non-zero multiple of 16 bytes: even an empty
// plaintext yields one full padding block.
func EncryptCBC(plaintext []byte, key [32]byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))

	mode := cipher.NewCBCEncrypter(block, iv[:])
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// DecryptCBC decrypts ciphertext produced by EncryptCBC and removes the
// PKCS#7 padding. Fails with ErrInvalidLength on malformed ciphertext or
// padding; the padding bytes are compared without an early return on the
// first mismatch.
func DecryptCBC(ciphertext []byte, key [32]byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrInvalidLength
	}

	mode := cipher.NewCBCDecrypter(block, iv[:])
	plaintext := make([]byte, len(ciphertext))
	mode.CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	length := len(data)
	if length == 0 {
		return nil, ErrInvalidLength
	}
	padding := int(data[length-1])
	if padding == 0 || padding > length || padding > aes.BlockSize {
		return nil, ErrInvalidLength
	}
	var bad byte
	for _, b := range data[length-padding:] {
		bad |= b ^ byte(padding)
	}
	if bad != 0 {
		return nil, ErrInvalidLength
	}
	return bytes.Clone(data[:length-padding]), nil
}
