// Package session holds the per-correspondent ratchet state a
// SessionCipher drives: the root key, the single sender chain, the
// bounded ring of receiver chains that tolerate out-of-order delivery,
// the skipped-message-key cache, and the archived states a SessionRecord
// keeps around so a late message from a superseded handshake can still
// be decrypted.
package session

import (
	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
	"github.com/sxweetlollipop2912/tripleratchet/pqratchet"
	"github.com/sxweetlollipop2912/tripleratchet/ratchet"
)

// Bounds fixed by spec §6.
const (
	MaxReceiverChains       = 5
	MaxMessageKeys          = 2000
	ArchivedStatesMaxLength = 40
)

// SenderChain is the keypair and chain key this side currently sends
// messages with.
type SenderChain struct {
	RatchetPrivate x25519.PrivateKey
	RatchetPublic  x25519.PublicKey
	ChainKey       ratchet.ChainKey
}

// PendingPreKey records the one-time and signed prekey ids Alice's first
// outbound message referenced, so encrypt can keep wrapping subsequent
// messages in a PreKeySignalMessage until Bob's first reply confirms
// receipt.
type PendingPreKey struct {
	PreKeyID       *uint32
	SignedPreKeyID uint32
	BaseKey        x25519.PublicKey
	TimestampMs    uint64
}

// PendingKyberPreKey records the Kyber prekey id and ciphertext Alice's
// first outbound message referenced.
type PendingKyberPreKey struct {
	ID         uint32
	Ciphertext []byte
}

type receiverEntry struct {
	pub      x25519.PublicKey
	chainKey ratchet.ChainKey
}

type cacheKey struct {
	chain   x25519.PublicKey
	counter uint32
}

// State is one generation of a session: a root key, the chain currently
// sending, the bounded ring of chains still able to receive, and the
// skipped message-key seeds those chains have accumulated.
type State struct {
	Version              uint32
	LocalIdentityKey     x25519.PublicKey
	RemoteIdentityKey    *x25519.PublicKey
	RootKey              ratchet.RootKey
	AliceBaseKey         *x25519.PublicKey
	Sender               *SenderChain
	PendingPreKey        *PendingPreKey
	PendingKyberPreKey   *PendingKyberPreKey
	PreviousCounter      uint32
	LocalRegistrationID  uint32
	RemoteRegistrationID uint32
	PQRatchet            *pqratchet.State

	// receivers is ordered most-recently-used first; AddReceiverChain
	// and GetReceiverChain both move their target to the front so the
	// ring evicts the chain that has gone longest unused, per spec §4.5.
	receivers []receiverEntry

	// cacheOrder is the FIFO eviction order across every receiver chain
	// in this state, capped at MaxMessageKeys entries total (spec §4.5:
	// "per-session total cached message-key seeds <= 2000").
	cacheOrder []cacheKey
	cache      map[cacheKey][32]byte
}

// NewState returns an empty State ready to have its root/sender/receiver
// fields populated by x3dh/alice or x3dh/bob.
func NewState() *State {
	return &State{cache: make(map[cacheKey][32]byte)}
}

// IsRootZero reports whether the root key is the zero value, meaning the
// state was never initialized by a handshake.
func (s *State) IsRootZero() bool {
	return s.RootKey == ratchet.RootKey{}
}

// SetRootKey replaces the session root key, zeroing the superseded key
// per the ownership discipline in spec §9.
func (s *State) SetRootKey(rk ratchet.RootKey) {
	old := s.RootKey
	s.RootKey = rk
	old.Zero()
}

// SetSenderChain installs a new sending chain, zeroing the chain key of
// whatever sender chain it replaces.
func (s *State) SetSenderChain(priv x25519.PrivateKey, pub x25519.PublicKey, ck ratchet.ChainKey) {
	if s.Sender != nil {
		s.Sender.ChainKey.Zero()
	}
	s.Sender = &SenderChain{RatchetPrivate: priv, RatchetPublic: pub, ChainKey: ck}
}

// AddReceiverChain installs a receiver chain for pub, evicting the
// least-recently-used chain first if the ring is already at
// MaxReceiverChains. Messages cached against an evicted chain are
// dropped with it: a later attempt to decrypt them will miss the chain
// entirely and fail like any other unresolvable message.
func (s *State) AddReceiverChain(pub x25519.PublicKey, ck ratchet.ChainKey) {
	for i, e := range s.receivers {
		if e.pub == pub {
			s.receivers = append(s.receivers[:i], s.receivers[i+1:]...)
			break
		}
	}
	s.receivers = append([]receiverEntry{{pub: pub, chainKey: ck}}, s.receivers...)
	for len(s.receivers) > MaxReceiverChains {
		evicted := s.receivers[len(s.receivers)-1]
		s.receivers = s.receivers[:len(s.receivers)-1]
		s.dropCacheFor(evicted.pub)
		evicted.chainKey.Zero()
	}
}

// GetReceiverChain looks up the chain keyed by pub and promotes it to
// most-recently-used.
func (s *State) GetReceiverChain(pub x25519.PublicKey) (ratchet.ChainKey, bool) {
	for i, e := range s.receivers {
		if e.pub == pub {
			if i != 0 {
				s.receivers = append(append([]receiverEntry{e}, s.receivers[:i]...), s.receivers[i+1:]...)
			}
			return e.chainKey, true
		}
	}
	return ratchet.ChainKey{}, false
}

// SetReceiverChainKey overwrites the chain key stored for an existing
// receiver chain (used after advancing past skipped messages), zeroing
// the superseded chain key.
func (s *State) SetReceiverChainKey(pub x25519.PublicKey, ck ratchet.ChainKey) {
	for i, e := range s.receivers {
		if e.pub == pub {
			s.receivers[i].chainKey.Zero()
			s.receivers[i].chainKey = ck
			return
		}
	}
}

// CacheMessageKeySeed records the seed for a skipped counter on chain
// pub, evicting the globally oldest cached seed first if the cache is
// already at MaxMessageKeys.
func (s *State) CacheMessageKeySeed(pub x25519.PublicKey, counter uint32, seed [32]byte) {
	key := cacheKey{chain: pub, counter: counter}
	if _, exists := s.cache[key]; exists {
		return
	}
	s.cache[key] = seed
	s.cacheOrder = append(s.cacheOrder, key)
	for len(s.cacheOrder) > MaxMessageKeys {
		oldest := s.cacheOrder[0]
		s.cacheOrder = s.cacheOrder[1:]
		delete(s.cache, oldest)
	}
}

// TakeMessageKeySeed removes and returns the cached seed for (pub,
// counter), reporting false if no such seed is cached (either never
// skipped, already consumed, or evicted).
func (s *State) TakeMessageKeySeed(pub x25519.PublicKey, counter uint32) ([32]byte, bool) {
	key := cacheKey{chain: pub, counter: counter}
	seed, ok := s.cache[key]
	if !ok {
		return [32]byte{}, false
	}
	delete(s.cache, key)
	for i, k := range s.cacheOrder {
		if k == key {
			s.cacheOrder = append(s.cacheOrder[:i], s.cacheOrder[i+1:]...)
			break
		}
	}
	return seed, true
}

func (s *State) dropCacheFor(pub x25519.PublicKey) {
	filtered := s.cacheOrder[:0]
	for _, k := range s.cacheOrder {
		if k.chain == pub {
			delete(s.cache, k)
			continue
		}
		filtered = append(filtered, k)
	}
	s.cacheOrder = filtered
}

// Clone deep-copies the state so a decrypt attempt can be tried against
// it without mutating the original until the attempt succeeds.
func (s *State) Clone() *State {
	clone := *s
	if s.RemoteIdentityKey != nil {
		v := *s.RemoteIdentityKey
		clone.RemoteIdentityKey = &v
	}
	if s.AliceBaseKey != nil {
		v := *s.AliceBaseKey
		clone.AliceBaseKey = &v
	}
	if s.Sender != nil {
		v := *s.Sender
		clone.Sender = &v
	}
	if s.PendingPreKey != nil {
		v := *s.PendingPreKey
		clone.PendingPreKey = &v
	}
	if s.PendingKyberPreKey != nil {
		v := *s.PendingKyberPreKey
		v.Ciphertext = append([]byte(nil), s.PendingKyberPreKey.Ciphertext...)
		clone.PendingKyberPreKey = &v
	}
	if s.PQRatchet != nil {
		cp := *s.PQRatchet
		clone.PQRatchet = &cp
	}
	clone.receivers = append([]receiverEntry(nil), s.receivers...)
	clone.cacheOrder = append([]cacheKey(nil), s.cacheOrder...)
	clone.cache = make(map[cacheKey][32]byte, len(s.cache))
	for k, v := range s.cache {
		clone.cache[k] = v
	}
	return &clone
}

// Record holds the current session state plus up to
// ArchivedStatesMaxLength previous states, so a message from a
// correspondent's superseded handshake can still be decrypted.
type Record struct {
	Current  *State
	Previous []*State
}

// NewRecord returns an empty record with no current state.
func NewRecord() *Record {
	return &Record{}
}

// IsFresh reports whether this record has never held a state, i.e. there
// is nothing to archive before installing a new current state.
func (r *Record) IsFresh() bool {
	return r.Current == nil
}

// ArchiveCurrentState pushes the current state onto the front of
// Previous, evicting the oldest archived state first once the list
// would exceed ArchivedStatesMaxLength.
func (r *Record) ArchiveCurrentState() {
	if r.Current == nil {
		return
	}
	r.Previous = append([]*State{r.Current}, r.Previous...)
	if len(r.Previous) > ArchivedStatesMaxLength {
		r.Previous = r.Previous[:ArchivedStatesMaxLength]
	}
	r.Current = nil
}

// HasSessionState reports whether the current or any archived state
// already resulted from a handshake with this (version, baseKey) pair,
// so a repeated PreKeySignalMessage referencing the same handshake can
// fall through to decrypting its embedded SignalMessage without
// re-deriving a session.
func (r *Record) HasSessionState(version uint32, baseKey x25519.PublicKey) bool {
	match := func(s *State) bool {
		return s != nil && s.Version == version && s.AliceBaseKey != nil && *s.AliceBaseKey == baseKey
	}
	if match(r.Current) {
		return true
	}
	for _, s := range r.Previous {
		if match(s) {
			return true
		}
	}
	return false
}

// PromoteArchived moves the archived state at index i to Current,
// archiving whatever was current beforehand. Used once a message
// successfully decrypts against an archived state (spec §4.7.3).
func (r *Record) PromoteArchived(i int, promoted *State) {
	old := r.Current
	r.Current = promoted
	r.Previous = append(r.Previous[:i:i], r.Previous[i+1:]...)
	if old != nil {
		r.Previous = append([]*State{old}, r.Previous...)
		if len(r.Previous) > ArchivedStatesMaxLength {
			r.Previous = r.Previous[:ArchivedStatesMaxLength]
		}
	}
}
