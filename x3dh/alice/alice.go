// Package alice implements the initiator side of PQXDH session setup:
// the four (or three, when the bundle has no one-time prekey) classical
// Diffie-Hellman agreements plus
// the ML-KEM-1024 encapsulation that together bootstrap a fresh
// session's root key, its first sender and receiver chains, and the PQ
// ratchet's initial authenticator key.
package alice

import (
	stdsha256 "crypto/sha256"
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/hkdf"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/mlkem"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
	"github.com/sxweetlollipop2912/tripleratchet/keys"
	"github.com/sxweetlollipop2912/tripleratchet/pqratchet"
	"github.com/sxweetlollipop2912/tripleratchet/ratchet"
	"github.com/sxweetlollipop2912/tripleratchet/session"
)

// ErrUnsupportedVersion is returned for any session_version other than 3
// or 4.
var ErrUnsupportedVersion = errors.New("x3dh/alice: unsupported session version")

const (
	infoV3 = "WhisperText"
	infoV4 = "WhisperText_X25519_SHA-256_CRYSTALS-KYBER-1024"
)

// Params are everything Alice needs from her own keys and Bob's prekey
// bundle to start a session.
type Params struct {
	Version uint32 // 3 or 4

	OurIdentity         keys.IdentityKeyPair
	OurBaseKey          x25519.PrivateKey
	LocalRegistrationID uint32

	TheirIdentityKey     x25519.PublicKey
	TheirSignedPreKey    x25519.PublicKey
	TheirOneTimePreKey   *x25519.PublicKey
	TheirPreKeyID        *uint32
	TheirSignedPreKeyID  uint32
	TheirKyberPreKey     *mlkem.KeyPair1024Public // required for v4
	TheirKyberPreKeyID   uint32
	RemoteRegistrationID uint32

	// PendingTimestampMs is the timestamp (caller-chosen "now", in
	// milliseconds) recorded against the pending prekey, so a later
	// Encrypt call can judge staleness against its own "now".
	PendingTimestampMs uint64
}

// Result is the freshly initialized session plus the Kyber ciphertext
// (v4 only) that must be embedded in the PreKeySignalMessage so Bob can
// decapsulate his side of the shared secret.
type Result struct {
	State           *session.State
	KyberCiphertext []byte
}

// InitializeSession runs PQXDH/X3DH from Alice's side, per spec §4.6.
func InitializeSession(p Params) (*Result, error) {
	if p.Version != 3 && p.Version != 4 {
		return nil, ErrUnsupportedVersion
	}
	if p.Version == 4 && p.TheirKyberPreKey == nil {
		return nil, keys.ErrMissingKyberCiphertext
	}

	ourBasePub, err := p.OurBaseKey.Public()
	if err != nil {
		return nil, err
	}

	dh1, err := x25519.Agreement(p.OurIdentity.Private, p.TheirSignedPreKey)
	if err != nil {
		return nil, err
	}
	dh2, err := x25519.Agreement(p.OurBaseKey, p.TheirIdentityKey)
	if err != nil {
		return nil, err
	}
	dh3, err := x25519.Agreement(p.OurBaseKey, p.TheirSignedPreKey)
	if err != nil {
		return nil, err
	}

	secretInput := make([]byte, 0, 32+32*4+mlkem.KEM1024SharedKeySize)
	secretInput = append(secretInput, ffPrefix()...)
	secretInput = append(secretInput, dh1[:]...)
	secretInput = append(secretInput, dh2[:]...)
	secretInput = append(secretInput, dh3[:]...)
	if p.TheirOneTimePreKey != nil {
		dh4, err := x25519.Agreement(p.OurBaseKey, *p.TheirOneTimePreKey)
		if err != nil {
			return nil, err
		}
		secretInput = append(secretInput, dh4[:]...)
	}

	var kyberCiphertext []byte
	info := []byte(infoV3)
	length := 64
	if p.Version == 4 {
		ct, shared, err := mlkem.Encapsulate1024(p.TheirKyberPreKey[:])
		if err != nil {
			return nil, err
		}
		kyberCiphertext = append([]byte(nil), ct[:]...)
		secretInput = append(secretInput, shared[:]...)
		info = []byte(infoV4)
		length = 96
	}

	derived, err := hkdf.Derive(stdsha256.New, secretInput, nil, info, length)
	if err != nil {
		return nil, err
	}
	var root ratchet.RootKey
	copy(root[:], derived[0:32])
	initialChainKey := ratchet.ChainKey{Index: 0}
	copy(initialChainKey.Key[:], derived[32:64])

	// Alice's own DH ratchet step, generating a fresh sending ratchet
	// keypair against Bob's signed prekey, mirrors the receive-side
	// ratchet Bob performs in cipher's decrypt-with-state flow once he
	// sees this keypair's public half for the first time.
	senderPriv, senderPub, err := x25519.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	dhOut, err := x25519.Agreement(senderPriv, p.TheirSignedPreKey)
	if err != nil {
		return nil, err
	}
	newRoot, senderChainKey, err := root.CreateChain(dhOut)
	if err != nil {
		return nil, err
	}

	state := session.NewState()
	state.Version = p.Version
	state.LocalIdentityKey = p.OurIdentity.Public
	remoteIdentity := p.TheirIdentityKey
	state.RemoteIdentityKey = &remoteIdentity
	state.RootKey = newRoot
	state.AliceBaseKey = &ourBasePub
	state.LocalRegistrationID = p.LocalRegistrationID
	state.RemoteRegistrationID = p.RemoteRegistrationID
	state.SetSenderChain(senderPriv, senderPub, senderChainKey)
	// Bob's side of the same X3DH-derived chain key becomes Alice's
	// initial receiver chain, keyed by his (un-rotated) signed prekey:
	// if he replies before ever rotating, she can still decrypt.
	state.AddReceiverChain(p.TheirSignedPreKey, initialChainKey)
	state.PendingPreKey = &session.PendingPreKey{
		PreKeyID:       p.TheirPreKeyID,
		SignedPreKeyID: p.TheirSignedPreKeyID,
		BaseKey:        ourBasePub,
		TimestampMs:    p.PendingTimestampMs,
	}

	if p.Version == 4 {
		var pqrAuthKey [32]byte
		copy(pqrAuthKey[:], derived[64:96])
		pqr, err := pqratchet.NewV1Initiator(pqrAuthKey)
		if err != nil {
			return nil, err
		}
		state.PQRatchet = pqr
		state.PendingKyberPreKey = &session.PendingKyberPreKey{
			ID:         p.TheirKyberPreKeyID,
			Ciphertext: kyberCiphertext,
		}
	} else {
		state.PQRatchet = pqratchet.NewV0()
	}

	return &Result{State: state, KyberCiphertext: kyberCiphertext}, nil
}

func ffPrefix() []byte {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}
