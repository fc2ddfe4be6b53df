// Package spqr implements the Sparse Post-Quantum Ratchet: the chunked,
// MAC-authenticated ML-KEM-768 exchange that periodically mixes a fresh
// post-quantum shared secret into a session, one epoch at a time.
package spqr

import (
	stdsha256 "crypto/sha256"
	"encoding/binary"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/hkdf"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/hmac"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/memzero"
)

// Domain-separated HKDF/HMAC info strings, fixed by the wire format.
var (
	infoAuthenticatorUpdate = []byte("Signal_PQCKA_V1_MLKEM768:Authenticator Update")
	infoSCKAKey             = []byte("Signal_PQCKA_V1_MLKEM768:SCKA Key")
	infoCiphertext          = []byte("Signal_PQCKA_V1_MLKEM768:ciphertext")
	infoEKHeader            = []byte("Signal_PQCKA_V1_MLKEM768:ekheader")
)

// Authenticator tracks the per-epoch root and MAC keys that bind header
// and ciphertext chunks to the epoch they belong to.
type Authenticator struct {
	RootKey [32]byte
	MacKey  [32]byte
	Epoch   uint64
}

// NewAuthenticator derives the first authenticator from an initial key
// shared out of band (the pqr_auth_key produced by PQXDH), at epoch 1:
// epoch 0 is reserved and no authenticator is ever derived for it.
func NewAuthenticator(authKey [32]byte) (Authenticator, error) {
	return deriveAuthenticator(authKey, firstEpoch)
}

// Advance derives the authenticator for the next epoch from this one's
// root key, per spec §4.3: new root/mac = HKDF(root_key, zero_salt,
// "...Authenticator Update" || epoch_be8, 64).
func (a Authenticator) Advance(newEpoch uint64) (Authenticator, error) {
	return deriveAuthenticator(a.RootKey, newEpoch)
}

// Zero wipes the root and MAC keys in place, per the ownership discipline
// in spec §9. Call once an authenticator has been superseded by Advance.
func (a *Authenticator) Zero() {
	memzero.Array32(&a.RootKey)
	memzero.Array32(&a.MacKey)
}

func deriveAuthenticator(rootKey [32]byte, epoch uint64) (Authenticator, error) {
	info := appendEpoch(infoAuthenticatorUpdate, epoch)
	derived, err := hkdf.Derive(stdsha256.New, rootKey[:], nil, info, 64)
	if err != nil {
		return Authenticator{}, err
	}
	var out Authenticator
	out.Epoch = epoch
	copy(out.RootKey[:], derived[:32])
	copy(out.MacKey[:], derived[32:64])
	return out, nil
}

func appendEpoch(info []byte, epoch uint64) []byte {
	out := make([]byte, len(info)+8)
	copy(out, info)
	binary.BigEndian.PutUint64(out[len(info):], epoch)
	return out
}

// macOver computes HMAC-SHA256(key, domain-separated info) mixed with
// data, per the domain-separated MAC construction in spec §4.3: the epoch
// and domain string salt the HKDF-free HMAC by being hashed alongside the
// authenticated bytes.
func macOver(key [32]byte, info []byte, epoch uint64, data []byte) []byte {
	buf := append(appendEpoch(info, epoch), data...)
	return hmac.Hash(stdsha256.New, key[:], buf)
}

// HeaderAuth authenticates a reconstructed header field.
func (a Authenticator) HeaderAuth(header []byte) []byte {
	return macOver(a.MacKey, infoEKHeader, a.Epoch, header)
}

// CiphertextAuth authenticates ct1||ct2 for this epoch.
func (a Authenticator) CiphertextAuth(ct1, ct2 []byte) []byte {
	buf := append(append([]byte{}, ct1...), ct2...)
	return macOver(a.MacKey, infoCiphertext, a.Epoch, buf)
}

// EpochSecret derives the 32-byte shared secret for this epoch from the
// raw ML-KEM shared value produced by encaps1+encaps2.
func EpochSecret(mlkemShared []byte, epoch uint64) ([32]byte, error) {
	info := appendEpoch(infoSCKAKey, epoch)
	derived, err := hkdf.Derive(stdsha256.New, mlkemShared, nil, info, 32)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], derived)
	return out, nil
}
