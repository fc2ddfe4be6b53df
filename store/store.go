// Package store declares the storage contracts SessionCipher depends
// on. It prescribes no persistence strategy: callers may back these
// with a database, an in-memory map, or anything else, synchronously or
// asynchronously, so long as writes that must be atomic with respect to
// other sessions (identity saves, Kyber prekey consumption) are.
package store

import (
	"context"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
	"github.com/sxweetlollipop2912/tripleratchet/keys"
	"github.com/sxweetlollipop2912/tripleratchet/session"
)

// Address identifies a remote correspondent's device, the unit a
// session is established per.
type Address struct {
	Name     string
	DeviceID uint32
}

// Direction distinguishes an outbound trust check from an inbound one;
// an IdentityKeyStore may apply different policy to each (e.g. warn
// only on send, block on receive).
type Direction int

const (
	Sending Direction = iota
	Receiving
)

// SessionStore loads and persists the SessionRecord for an address.
type SessionStore interface {
	LoadSession(ctx context.Context, address Address) (*session.Record, error)
	StoreSession(ctx context.Context, address Address, record *session.Record) error
}

// IdentityKeyStore holds this device's own identity keypair and
// registration id, plus the trust decisions made about every
// correspondent's identity key.
type IdentityKeyStore interface {
	GetIdentityKeyPair(ctx context.Context) (keys.IdentityKeyPair, error)
	GetLocalRegistrationID(ctx context.Context) (uint32, error)
	SaveIdentity(ctx context.Context, address Address, identityKey x25519.PublicKey) error
	IsTrustedIdentity(ctx context.Context, address Address, identityKey x25519.PublicKey, direction Direction) (bool, error)
}

// PreKeyStore loads and removes one-time prekeys.
type PreKeyStore interface {
	LoadPreKey(ctx context.Context, id uint32) (*keys.PreKey, error)
	RemovePreKey(ctx context.Context, id uint32) error
}

// SignedPreKeyStore loads signed prekeys.
type SignedPreKeyStore interface {
	LoadSignedPreKey(ctx context.Context, id uint32) (*keys.SignedPreKey, error)
}

// KyberPreKeyStore loads Kyber prekeys and records their consumption.
// MarkKyberPreKeyUsed is called before the matching one-time prekey is
// removed, so a replayed handshake is rejected deterministically by the
// Kyber store even if the EC prekey removal raced with it.
type KyberPreKeyStore interface {
	LoadKyberPreKey(ctx context.Context, id uint32) (*keys.KyberPreKey, error)
	MarkKyberPreKeyUsed(ctx context.Context, kyberID uint32, signedPreKeyID uint32, baseKey x25519.PublicKey) error
}
