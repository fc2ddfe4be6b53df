// Package bob implements the responder side of PQXDH session setup: the
// mirror image of x3dh/alice, run when an inbound PreKeySignalMessage
// references a prekey bundle this device published.
package bob

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

// ErrX3DHNoLongerSupported is returned for a v3 handshake: the triple
// ratchet configuration requires PQXDH.
var ErrX3DHNoLongerSupported = errors.New("x3dh/bob: x3dh (v3) no longer supported")

// ErrUnsupportedVersion is returned for any session_version other than 4
// once v3 has been rejected.
var ErrUnsupportedVersion = errors.New("x3dh/bob: unsupported session version")

const (
	infoV4 = "WhisperText_X25519_SHA-256_CRYSTALS-KYBER-1024"
)

// Params are everything Bob needs from his own keys and Alice's inbound
// PreKeySignalMessage to process a v4 handshake.
type Params struct {
	Version uint32

	OurIdentity          keys.IdentityKeyPair
	OurSignedPreKey      keys.SignedPreKey
	OurOneTimePreKey     *keys.PreKey
	OurKyberPreKey       keys.KyberPreKey
	LocalRegistrationID  uint32
	RemoteRegistrationID uint32

	TheirIdentityKey     x25519.PublicKey
	TheirBaseKey         x25519.PublicKey
	TheirKyberCiphertext []byte
}

// InitializeSession runs PQXDH from Bob's side, per spec §4.6.
func InitializeSession(p Params) (*session.State, error) {
	if p.Version == 3 {
		return nil, ErrX3DHNoLongerSupported
	}
	if p.Version != 4 {
		return nil, ErrUnsupportedVersion
	}
	if len(p.TheirKyberCiphertext) == 0 {
		return nil, keys.ErrMissingKyberCiphertext
	}

	dh1, err := x25519.Agreement(p.OurSignedPreKey.Private, p.TheirIdentityKey)
	if err != nil {
		return nil, err
	}
	dh2, err := x25519.Agreement(p.OurIdentity.Private, p.TheirBaseKey)
	if err != nil {
		return nil, err
	}
	dh3, err := x25519.Agreement(p.OurSignedPreKey.Private, p.TheirBaseKey)
	if err != nil {
		return nil, err
	}

	secretInput := make([]byte, 0, 32+32*4+mlkem.KEM1024SharedKeySize)
	secretInput = append(secretInput, ffPrefix()...)
	secretInput = append(secretInput, dh1[:]...)
	secretInput = append(secretInput, dh2[:]...)
	secretInput = append(secretInput, dh3[:]...)
	if p.OurOneTimePreKey != nil {
		dh4, err := x25519.Agreement(p.OurOneTimePreKey.Private, p.TheirBaseKey)
		if err != nil {
			return nil, err
		}
		secretInput = append(secretInput, dh4[:]...)
	}

	shared, err := mlkem.Decapsulate1024(p.OurKyberPreKey.KeyPair.Private[:], p.TheirKyberCiphertext)
	if err != nil {
		return nil, err
	}
	secretInput = append(secretInput, shared[:]...)

	derived, err := hkdf.Derive(stdsha256.New, secretInput, nil, []byte(infoV4), 96)
	if err != nil {
		return nil, err
	}
	var root ratchet.RootKey
	copy(root[:], derived[0:32])
	senderChainKey := ratchet.ChainKey{Index: 0}
	copy(senderChainKey.Key[:], derived[32:64])
	var pqrAuthKey [32]byte
	copy(pqrAuthKey[:], derived[64:96])

	state := session.NewState()
	state.Version = p.Version
	state.LocalIdentityKey = p.OurIdentity.Public
	remoteIdentity := p.TheirIdentityKey
	state.RemoteIdentityKey = &remoteIdentity
	state.RootKey = root
	baseKey := p.TheirBaseKey
	state.AliceBaseKey = &baseKey
	state.LocalRegistrationID = p.LocalRegistrationID
	state.RemoteRegistrationID = p.RemoteRegistrationID
	// Bob's ratchet key is his (unrotated) signed prekey, matching the
	// chain key this same HKDF output handed to Alice as her initial
	// receiver chain: if Bob never rotates, the two stay in lockstep.
	state.SetSenderChain(p.OurSignedPreKey.Private, p.OurSignedPreKey.Public, senderChainKey)

	pqr, err := pqratchet.NewV1Responder(pqrAuthKey)
	if err != nil {
		return nil, err
	}
	state.PQRatchet = pqr

	return state, nil
}

func ffPrefix() []byte {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}
