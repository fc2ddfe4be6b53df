// Package cipher is the orchestration layer a caller actually drives:
// SessionCipher.Encrypt and Decrypt walk the steps spec §4.7 lays out,
// turning plaintext into a wire-ready SignalMessage or
// PreKeySignalMessage and back, ratcheting chains, enforcing replay and
// forward-jump limits, and touching the store interfaces (C10) at their
// prescribed boundaries.
package cipher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/aes"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
	"github.com/sxweetlollipop2912/tripleratchet/keys"
	"github.com/sxweetlollipop2912/tripleratchet/ratchet"
	"github.com/sxweetlollipop2912/tripleratchet/session"
	"github.com/sxweetlollipop2912/tripleratchet/store"
	"github.com/sxweetlollipop2912/tripleratchet/wire"
	"github.com/sxweetlollipop2912/tripleratchet/x3dh/bob"
)

// MessageType distinguishes the two wire shapes a transport hands
// Decrypt. Classifying inbound bytes as one or the other is an envelope
// concern spec §1 places outside the CORE; callers (or the excluded
// CBOR/UR envelope layer) are expected to carry this alongside the
// ciphertext bytes themselves.
type MessageType int

const (
	WhisperMessage MessageType = iota
	PreKeyWhisperMessage
)

// SessionCipher drives the ratchet for one remote address. Per spec §5,
// a single SessionCipher must not have Encrypt and Decrypt in flight
// concurrently; independent addresses may run in parallel.
type SessionCipher struct {
	Address           store.Address
	SessionStore      store.SessionStore
	IdentityStore     store.IdentityKeyStore
	PreKeyStore       store.PreKeyStore
	SignedPreKeyStore store.SignedPreKeyStore
	KyberPreKeyStore  store.KyberPreKeyStore

	// PendingPreKeyMaxAge is the caller-supplied staleness window for
	// an unacknowledged pending prekey (spec's
	// MAX_UNACKNOWLEDGED_SESSION_AGE_SECS); the core does not define a
	// default.
	PendingPreKeyMaxAge time.Duration

	Log *logrus.Entry
}

func (c *SessionCipher) log() *logrus.Entry {
	if c.Log != nil {
		return c.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Encrypt produces the next outbound wire message: a plain
// SignalMessage, or a PreKeySignalMessage if this session still has an
// unacknowledged pending prekey.
func (c *SessionCipher) Encrypt(ctx context.Context, plaintext []byte, now time.Time) ([]byte, error) {
	record, err := c.SessionStore.LoadSession(ctx, c.Address)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Current == nil {
		return nil, ErrSessionNotFound
	}
	state := record.Current
	if state.Sender == nil || state.RemoteIdentityKey == nil {
		return nil, ErrInvalidSession
	}

	trusted, err := c.IdentityStore.IsTrustedIdentity(ctx, c.Address, *state.RemoteIdentityKey, store.Sending)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, ErrUntrustedIdentity
	}

	if state.PendingPreKey != nil && c.PendingPreKeyMaxAge > 0 {
		age := now.Sub(time.UnixMilli(int64(state.PendingPreKey.TimestampMs)))
		if age > c.PendingPreKeyMaxAge {
			return nil, ErrSessionNotFound
		}
	}

	chainKey := state.Sender.ChainKey
	defer chainKey.Zero()
	seed := chainKey.MessageKeySeed()
	counter := chainKey.Index

	pqrMsg, pqrKey, err := state.PQRatchet.Send()
	if err != nil {
		return nil, err
	}
	var salt []byte
	if pqrKey != nil {
		salt = pqrKey[:]
	}

	mk, err := ratchet.DeriveMessageKeys(seed, counter, salt)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()

	ciphertext, err := aes.EncryptCBC(plaintext, mk.CipherKey, mk.IV)
	if err != nil {
		return nil, err
	}

	signalMsg := &wire.SignalMessage{
		Version:             state.Version,
		SenderRatchetPublic: state.Sender.RatchetPublic,
		Counter:             counter,
		PreviousCounter:     state.PreviousCounter,
		Ciphertext:          ciphertext,
		PQRatchetMessage:    pqrMsg,
	}
	signalMsg.Serialize(mk.MacKey[:], state.LocalIdentityKey, *state.RemoteIdentityKey)

	var out []byte
	if state.PendingPreKey != nil {
		pkMsg := &wire.PreKeySignalMessage{
			Version:        state.Version,
			PreKeyID:       state.PendingPreKey.PreKeyID,
			BaseKey:        state.PendingPreKey.BaseKey,
			IdentityKey:    state.LocalIdentityKey,
			Message:        signalMsg,
			RegistrationID: state.LocalRegistrationID,
			SignedPreKeyID: state.PendingPreKey.SignedPreKeyID,
		}
		if state.PendingKyberPreKey != nil {
			id := state.PendingKyberPreKey.ID
			pkMsg.KyberPreKeyID = &id
			pkMsg.KyberCiphertext = state.PendingKyberPreKey.Ciphertext
		}
		out = pkMsg.Serialize()
	} else {
		out = signalMsg.Bytes()
	}

	state.Sender.ChainKey = chainKey.Next()

	if err := c.SessionStore.StoreSession(ctx, c.Address, record); err != nil {
		return nil, err
	}
	c.log().WithFields(logrus.Fields{"address": c.Address, "counter": counter}).Debug("encrypted message")
	return out, nil
}

// Decrypt recovers the plaintext of an inbound wire message. msgType
// tells Decrypt which wire shape data is; see MessageType's doc comment.
func (c *SessionCipher) Decrypt(ctx context.Context, msgType MessageType, data []byte, now time.Time) ([]byte, error) {
	if msgType == PreKeyWhisperMessage {
		return c.decryptPreKeyMessage(ctx, data, now)
	}
	return c.decryptSignalMessage(ctx, data, now)
}

func (c *SessionCipher) decryptPreKeyMessage(ctx context.Context, data []byte, now time.Time) ([]byte, error) {
	pkMsg, err := wire.ParsePreKeySignalMessage(data)
	if err != nil {
		if errors.Is(err, wire.ErrLegacyCiphertextVersion) {
			return nil, ErrX3DHNoLongerSupported
		}
		return nil, ErrInvalidMessage
	}

	trusted, err := c.IdentityStore.IsTrustedIdentity(ctx, c.Address, pkMsg.IdentityKey, store.Receiving)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, ErrUntrustedIdentity
	}

	record, err := c.SessionStore.LoadSession(ctx, c.Address)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = session.NewRecord()
	}

	if !record.HasSessionState(pkMsg.Version, pkMsg.BaseKey) {
		localRegID, err := c.IdentityStore.GetLocalRegistrationID(ctx)
		if err != nil {
			return nil, err
		}
		ourIdentity, err := c.IdentityStore.GetIdentityKeyPair(ctx)
		if err != nil {
			return nil, err
		}
		ourSignedPreKey, err := c.SignedPreKeyStore.LoadSignedPreKey(ctx, pkMsg.SignedPreKeyID)
		if err != nil {
			return nil, err
		}
		if ourSignedPreKey == nil {
			return nil, ErrInvalidKey
		}
		var ourOneTime *keys.PreKey
		if pkMsg.PreKeyID != nil {
			pk, err := c.PreKeyStore.LoadPreKey(ctx, *pkMsg.PreKeyID)
			if err != nil {
				return nil, err
			}
			ourOneTime = pk
		}
		if pkMsg.KyberPreKeyID == nil {
			return nil, ErrMissingKyberCiphertext
		}
		ourKyber, err := c.KyberPreKeyStore.LoadKyberPreKey(ctx, *pkMsg.KyberPreKeyID)
		if err != nil {
			return nil, err
		}
		if ourKyber == nil {
			return nil, ErrInvalidKey
		}

		params := bob.Params{
			Version:              pkMsg.Version,
			OurIdentity:          ourIdentity,
			OurSignedPreKey:      *ourSignedPreKey,
			OurKyberPreKey:       *ourKyber,
			LocalRegistrationID:  localRegID,
			RemoteRegistrationID: pkMsg.RegistrationID,
			TheirIdentityKey:     pkMsg.IdentityKey,
			TheirBaseKey:         pkMsg.BaseKey,
			TheirKyberCiphertext: pkMsg.KyberCiphertext,
			OurOneTimePreKey:     ourOneTime,
		}

		newState, err := bob.InitializeSession(params)
		if err != nil {
			if errors.Is(err, bob.ErrX3DHNoLongerSupported) {
				return nil, ErrX3DHNoLongerSupported
			}
			return nil, err
		}

		if !record.IsFresh() {
			record.ArchiveCurrentState()
		}
		record.Current = newState

		plaintext, err := c.decryptAgainstRecord(record, pkMsg.Message, now)
		if err != nil {
			return nil, err
		}

		// Prekey consumption ordering (spec §4.7): mark the Kyber
		// prekey used before removing the one-time EC prekey, so a
		// replayed handshake is rejected deterministically by the
		// Kyber store even under a racing removal.
		if err := c.KyberPreKeyStore.MarkKyberPreKeyUsed(ctx, *pkMsg.KyberPreKeyID, pkMsg.SignedPreKeyID, pkMsg.BaseKey); err != nil {
			return nil, err
		}
		if pkMsg.PreKeyID != nil {
			if err := c.PreKeyStore.RemovePreKey(ctx, *pkMsg.PreKeyID); err != nil {
				return nil, err
			}
		}
		if err := c.IdentityStore.SaveIdentity(ctx, c.Address, pkMsg.IdentityKey); err != nil {
			return nil, err
		}
		if err := c.SessionStore.StoreSession(ctx, c.Address, record); err != nil {
			return nil, err
		}
		c.log().WithField("address", c.Address).Debug("established session from prekey message")
		return plaintext, nil
	}

	// Session for this handshake already exists; fall through to the
	// ordinary decrypt-with-state search over current + archived.
	plaintext, err := c.decryptAgainstRecord(record, pkMsg.Message, now)
	if err != nil {
		return nil, err
	}
	if err := c.SessionStore.StoreSession(ctx, c.Address, record); err != nil {
		return nil, err
	}
	return plaintext, nil
}

func (c *SessionCipher) decryptSignalMessage(ctx context.Context, data []byte, now time.Time) ([]byte, error) {
	msg, err := wire.ParseSignalMessage(data)
	if err != nil {
		if errors.Is(err, wire.ErrLegacyCiphertextVersion) {
			return nil, ErrX3DHNoLongerSupported
		}
		return nil, ErrInvalidMessage
	}

	record, err := c.SessionStore.LoadSession(ctx, c.Address)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Current == nil {
		return nil, ErrSessionNotFound
	}

	plaintext, err := c.decryptAgainstRecord(record, msg, now)
	if err != nil {
		return nil, err
	}
	if err := c.SessionStore.StoreSession(ctx, c.Address, record); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// decryptAgainstRecord tries the current state, then each archived
// state in turn, per spec §4.7.3: each attempt runs against a deep copy
// so a failed or partial attempt never mutates the record, and only a
// successful decrypt is committed (promoting an archived state to
// current if that's the one that worked). A DuplicateMessage failure
// short-circuits the search; every other failure allows the next
// candidate to be tried.
func (c *SessionCipher) decryptAgainstRecord(record *session.Record, msg *wire.SignalMessage, now time.Time) ([]byte, error) {
	type candidate struct {
		state      *session.State
		archiveIdx int // -1 for current
	}
	candidates := []candidate{{record.Current, -1}}
	for i, s := range record.Previous {
		candidates = append(candidates, candidate{s, i})
	}

	var lastErr error = ErrInvalidMessage
	for _, cand := range candidates {
		if cand.state == nil {
			continue
		}
		clone := cand.state.Clone()
		plaintext, err := c.decryptWithState(clone, msg, now)
		if err == nil {
			if cand.archiveIdx == -1 {
				record.Current = clone
			} else {
				record.PromoteArchived(cand.archiveIdx, clone)
			}
			return plaintext, nil
		}
		if errors.Is(err, ErrDuplicateMessage) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// decryptWithState implements spec §4.7.4: version check, DH ratchet on
// a new sender ratchet key, replay/forward-jump enforcement, PQ salt
// mixing, MAC verification, and AES-CBC decryption, in that order.
func (c *SessionCipher) decryptWithState(state *session.State, msg *wire.SignalMessage, now time.Time) ([]byte, error) {
	_ = now

	if msg.Version != state.Version {
		return nil, ErrInvalidMessage
	}
	if state.IsRootZero() {
		return nil, ErrInvalidSession
	}
	if state.RemoteIdentityKey == nil {
		return nil, ErrInvalidSession
	}

	chainKey, found := state.GetReceiverChain(msg.SenderRatchetPublic)
	defer chainKey.Zero()
	if !found {
		if state.Sender == nil {
			return nil, ErrInvalidMessage
		}
		dhOut, err := x25519.Agreement(state.Sender.RatchetPrivate, msg.SenderRatchetPublic)
		if err != nil {
			return nil, ErrInvalidKey
		}
		intermediateRoot, newReceiverChain, err := state.RootKey.CreateChain(dhOut)
		if err != nil {
			return nil, err
		}

		newSenderPriv, newSenderPub, err := x25519.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		dhOut2, err := x25519.Agreement(newSenderPriv, msg.SenderRatchetPublic)
		if err != nil {
			return nil, err
		}
		newRoot, newSenderChainKey, err := intermediateRoot.CreateChain(dhOut2)
		if err != nil {
			return nil, err
		}
		intermediateRoot.Zero()

		prevCounter := uint32(0)
		if state.Sender.ChainKey.Index > 0 {
			prevCounter = state.Sender.ChainKey.Index - 1
		}
		state.PreviousCounter = prevCounter

		state.AddReceiverChain(msg.SenderRatchetPublic, newReceiverChain)
		state.SetSenderChain(newSenderPriv, newSenderPub, newSenderChainKey)
		state.SetRootKey(newRoot)

		if state.PQRatchet != nil {
			if err := state.PQRatchet.RatchetStep(dhOut2); err != nil {
				return nil, err
			}
		}

		chainKey, found = state.GetReceiverChain(msg.SenderRatchetPublic)
		if !found {
			return nil, ErrInvalidMessage
		}
	}

	var seed [32]byte
	if chainKey.Index > msg.Counter {
		s, ok := state.TakeMessageKeySeed(msg.SenderRatchetPublic, msg.Counter)
		if !ok {
			return nil, ErrDuplicateMessage
		}
		seed = s
	} else {
		if msg.Counter-chainKey.Index > MaxForwardJumps && !isSelfSession(state) {
			return nil, fmt.Errorf("%w: too far into future", ErrInvalidMessage)
		}
		for chainKey.Index < msg.Counter {
			state.CacheMessageKeySeed(msg.SenderRatchetPublic, chainKey.Index, chainKey.MessageKeySeed())
			chainKey = chainKey.Next()
		}
		seed = chainKey.MessageKeySeed()
		chainKey = chainKey.Next()
		state.SetReceiverChainKey(msg.SenderRatchetPublic, chainKey)
	}

	pqrKey, err := state.PQRatchet.Recv(msg.PQRatchetMessage)
	if err != nil {
		return nil, err
	}
	var salt []byte
	if pqrKey != nil {
		salt = pqrKey[:]
	}

	mk, err := ratchet.DeriveMessageKeys(seed, msg.Counter, salt)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()

	if !msg.VerifyMac(mk.MacKey[:], *state.RemoteIdentityKey, state.LocalIdentityKey) {
		return nil, ErrInvalidMessage
	}

	plaintext, err := aes.DecryptCBC(msg.Ciphertext, mk.CipherKey, mk.IV)
	if err != nil {
		return nil, ErrInvalidMessage
	}

	state.PendingPreKey = nil
	state.PendingKyberPreKey = nil

	return plaintext, nil
}

func isSelfSession(state *session.State) bool {
	return state.RemoteIdentityKey != nil && *state.RemoteIdentityKey == state.LocalIdentityKey
}
