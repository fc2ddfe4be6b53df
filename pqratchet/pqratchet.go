// Package pqratchet is the facade a session's double ratchet drives on
// every send/receive: either a no-op V0 state, or a V1 state that streams
// an spqr.Chain alongside the ordinary message flow and folds each
// completed epoch secret into a PQ root key chain of its own.
package pqratchet

import (
	"crypto/sha256"
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/hkdf"
	"github.com/sxweetlollipop2912/tripleratchet/spqr"
	"github.com/sxweetlollipop2912/tripleratchet/wire"
)

var (
	// ErrMalformedMessage is returned when a V0 state is handed a non-empty
	// message, or a V1 state is handed a message it cannot decode.
	ErrMalformedMessage = errors.New("pqratchet: malformed message")
)

const (
	infoChainStart    = "Signal PQ Ratchet V1 Chain  Start"
	infoChainAddEpoch = "Signal PQ Ratchet V1 Chain Add Epoch"
	infoChainNext     = "Signal PQ Ratchet V1 Chain Next"
)

// State is a PqRatchetState: V0 when chain is nil, V1+ otherwise.
type State struct {
	root   [32]byte
	chain  *spqr.Chain
	cached *[32]byte
}

// NewV0 returns the empty facade: Send emits no bytes and no key, Recv of
// an empty message reports no key.
func NewV0() *State {
	return &State{}
}

// NewV1Initiator starts a V1 facade in the send_ek (Alice) role, the role
// the PQXDH initiator takes for the session's first epoch.
func NewV1Initiator(pqrAuthKey [32]byte) (*State, error) {
	return newV1(pqrAuthKey, true)
}

// NewV1Responder starts a V1 facade in the send_ct (Bob) role.
func NewV1Responder(pqrAuthKey [32]byte) (*State, error) {
	return newV1(pqrAuthKey, false)
}

func newV1(pqrAuthKey [32]byte, initiator bool) (*State, error) {
	root, err := deriveRoot32(pqrAuthKey[:], nil, infoChainStart)
	if err != nil {
		return nil, err
	}

	var chain *spqr.Chain
	if initiator {
		chain, err = spqr.NewAliceChain(root)
	} else {
		chain, err = spqr.NewBobChain(root)
	}
	if err != nil {
		return nil, err
	}
	return &State{root: root, chain: chain}, nil
}

// IsV0 reports whether this facade is the empty, disabled variant.
func (s *State) IsV0() bool {
	return s.chain == nil
}

// Send returns the next wire message to emit (empty for V0) and the
// per-message key. Per the sparse-ratchet rule, the key equals whatever
// epoch secret is currently cached and does not advance on every call —
// only a newly completed epoch (observed via Recv) replaces it.
// RatchetStep does not change it: RatchetStep only updates the facade's
// root, and the key is not derived from that root.
func (s *State) Send() (message []byte, key *[32]byte, err error) {
	if s.chain == nil {
		return nil, nil, nil
	}
	msg, err := s.chain.Send()
	if err != nil {
		return nil, nil, err
	}
	return wire.EncodeSPQRMessage(msg), s.cached, nil
}

// Recv ingests an inbound wire message and returns the resulting key,
// which is the newly completed epoch secret if this call finished one, or
// the already-cached secret otherwise. Calling Recv again with a message
// from an already-settled epoch is idempotent: the chain discards it and
// the same cached key is returned.
func (s *State) Recv(message []byte) (*[32]byte, error) {
	if s.chain == nil {
		if len(message) != 0 {
			return nil, ErrMalformedMessage
		}
		return nil, nil
	}

	msg, err := wire.DecodeSPQRMessage(message)
	if err != nil {
		return nil, ErrMalformedMessage
	}
	secret, err := s.chain.Recv(msg)
	if err != nil {
		return nil, err
	}
	if secret != nil {
		if err := s.addEpoch(*secret); err != nil {
			return nil, err
		}
		s.cached = secret
	}
	return s.cached, nil
}

// RatchetStep mixes a freshly agreed Diffie-Hellman shared secret into the
// PQ root on a DH ratchet boundary. A V0 facade ignores the call.
func (s *State) RatchetStep(dhShared [32]byte) error {
	if s.chain == nil {
		return nil
	}
	root, err := deriveRoot32(s.root[:], dhShared[:], infoChainNext)
	if err != nil {
		return err
	}
	s.root = root
	return nil
}

// addEpoch folds a completed SPQR epoch secret into the PQ root chain, so
// the facade's own root reflects every epoch the underlying chain settles.
func (s *State) addEpoch(epochSecret [32]byte) error {
	root, err := deriveRoot32(s.root[:], epochSecret[:], infoChainAddEpoch)
	if err != nil {
		return err
	}
	s.root = root
	return nil
}

func deriveRoot32(key, salt []byte, info string) ([32]byte, error) {
	out, err := hkdf.Derive(sha256.New, key, salt, []byte(info), 32)
	if err != nil {
		return [32]byte{}, err
	}
	var root [32]byte
	copy(root[:], out)
	return root, nil
}

