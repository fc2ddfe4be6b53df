// Package ratchet implements the symmetric-key side of the double
// ratchet: the root key that consumes DH output to mint new chains, the
// chain key that steps forward on every message, and the per-message
// key derivation that mixes in the sparse post-quantum salt.
package ratchet

import (
	"crypto/sha256"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/hkdf"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/hmac"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/memzero"
)

// HKDF info strings fixed by the wire format; see spec §6.
var (
	InfoWhisperRatchet     = []byte("WhisperRatchet")
	InfoWhisperMessageKeys = []byte("WhisperMessageKeys")
)

// RootKey is the 32-byte root of a session's DH ratchet.
type RootKey [32]byte

// Zero wipes the root key in place, per the ownership discipline in spec
// §9. Call once a root key has been superseded by CreateChain's output.
func (rk *RootKey) Zero() {
	memzero.Array32((*[32]byte)(rk))
}

// ChainKey is a sender or receiver chain's current symmetric state.
type ChainKey struct {
	Key   [32]byte
	Index uint32
}

// Zero wipes the chain key in place, per the ownership discipline in
// spec §9. Call once a chain key has stepped forward (Next) or been
// replaced and the old value is no longer needed.
func (ck *ChainKey) Zero() {
	memzero.Array32(&ck.Key)
}

// MessageKeys are the per-message symmetric keys derived from a chain
// key's seed.
type MessageKeys struct {
	CipherKey [32]byte
	MacKey    [32]byte
	IV        [16]byte
	Counter   uint32
}

// Zero wipes the cipher key, MAC key, and IV in place, per the ownership
// discipline in spec §9. Call once a message has been encrypted or
// decrypted and these keys are no longer needed.
func (mk *MessageKeys) Zero() {
	memzero.Array32(&mk.CipherKey)
	memzero.Array32(&mk.MacKey)
	memzero.Bytes(mk.IV[:])
}

// CreateChain derives a new (root key, chain key) pair from a DH output,
// per spec §3: HKDF-SHA256(ikm=dhOut, salt=rk.Key, info="WhisperRatchet",
// len=64), split into a 32-byte root and a 32-byte chain key at index 0.
func (rk RootKey) CreateChain(dhOut [32]byte) (RootKey, ChainKey, error) {
	derived, err := hkdf.Derive(sha256.New, dhOut[:], rk[:], InfoWhisperRatchet, 64)
	if err != nil {
		return RootKey{}, ChainKey{}, err
	}

	var newRoot RootKey
	copy(newRoot[:], derived[:32])

	ck := ChainKey{Index: 0}
	copy(ck.Key[:], derived[32:64])
	return newRoot, ck, nil
}

// Next advances the chain key by one message: key' = HMAC(key, 0x02).
func (ck ChainKey) Next() ChainKey {
	next := ChainKey{Index: ck.Index + 1}
	copy(next.Key[:], hmac.SHA256(ck.Key[:], []byte{0x02}))
	return next
}

// MessageKeySeed returns HMAC(key, 0x01), the input to MessageKeys
// derivation for the message at this chain index.
func (ck ChainKey) MessageKeySeed() [32]byte {
	var seed [32]byte
	copy(seed[:], hmac.SHA256(ck.Key[:], []byte{0x01}))
	return seed
}

// DeriveMessageKeys derives MessageKeys from a chain-key seed and counter,
// optionally mixing in a 32-byte PQ salt produced by the SPQR facade. A
// nil salt reproduces classical double-ratchet behaviour.
//
// derived = HKDF-SHA256(ikm=seed, salt=pqSalt (or none), info=
// "WhisperMessageKeys", len=80); cipher_key=derived[0:32],
// mac_key=derived[32:64], iv=derived[64:80].
func DeriveMessageKeys(seed [32]byte, counter uint32, pqSalt []byte) (MessageKeys, error) {
	derived, err := hkdf.Derive(sha256.New, seed[:], pqSalt, InfoWhisperMessageKeys, 80)
	if err != nil {
		return MessageKeys{}, err
	}

	var mk MessageKeys
	mk.Counter = counter
	copy(mk.CipherKey[:], derived[0:32])
	copy(mk.MacKey[:], derived[32:64])
	copy(mk.IV[:], derived[64:80])
	return mk, nil
}
