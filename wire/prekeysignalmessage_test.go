package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
	"github.com/sxweetlollipop2912/tripleratchet/keys"
)

func TestPreKeySignalMessageRoundTrip(t *testing.T) {
	_, baseKey, err := x25519.GenerateKeyPair()
	require.NoError(t, err)
	_, identityKey, err := x25519.GenerateKeyPair()
	require.NoError(t, err)
	_, ratchetPub, err := x25519.GenerateKeyPair()
	require.NoError(t, err)

	macKey := make([]byte, 32)
	embedded := &SignalMessage{
		Version:             CurrentVersion,
		SenderRatchetPublic: ratchetPub,
		Counter:             1,
		Ciphertext:          []byte("payload"),
	}
	embedded.Serialize(macKey, identityKey, identityKey)
	embeddedMac := embedded.Mac

	preKeyID := uint32(5)
	kyberID := uint32(9)
	msg := &PreKeySignalMessage{
		Version:         CurrentVersion,
		PreKeyID:        &preKeyID,
		BaseKey:         baseKey,
		IdentityKey:     identityKey,
		Message:         embedded,
		RegistrationID:  11,
		SignedPreKeyID:  2,
		KyberPreKeyID:   &kyberID,
		KyberCiphertext: []byte("ct"),
	}

	data := msg.Serialize()
	parsed, err := ParsePreKeySignalMessage(data)
	require.NoError(t, err)

	assert.Equal(t, *msg.PreKeyID, *parsed.PreKeyID)
	assert.Equal(t, msg.BaseKey, parsed.BaseKey)
	assert.Equal(t, msg.IdentityKey, parsed.IdentityKey)
	assert.Equal(t, msg.RegistrationID, parsed.RegistrationID)
	assert.Equal(t, msg.SignedPreKeyID, parsed.SignedPreKeyID)
	assert.Equal(t, *msg.KyberPreKeyID, *parsed.KyberPreKeyID)
	assert.Equal(t, msg.KyberCiphertext, parsed.KyberCiphertext)

	// Embedding must not have recomputed the inner message's MAC.
	assert.Equal(t, embeddedMac, parsed.Message.Mac)
	assert.True(t, parsed.Message.VerifyMac(macKey, identityKey, identityKey))
}

func TestPreKeySignalMessageRequiresKyberFieldsTogether(t *testing.T) {
	_, baseKey, err := x25519.GenerateKeyPair()
	require.NoError(t, err)
	_, identityKey, err := x25519.GenerateKeyPair()
	require.NoError(t, err)
	_, ratchetPub, err := x25519.GenerateKeyPair()
	require.NoError(t, err)

	embedded := &SignalMessage{Version: CurrentVersion, SenderRatchetPublic: ratchetPub}
	embedded.Serialize(make([]byte, 32), identityKey, identityKey)

	msg := &PreKeySignalMessage{
		Version:        CurrentVersion,
		BaseKey:        baseKey,
		IdentityKey:    identityKey,
		Message:        embedded,
		RegistrationID: 1,
		SignedPreKeyID: 1,
	}
	// No Kyber fields at all: still parses fine (both absent).
	data := msg.Serialize()
	_, err = ParsePreKeySignalMessage(data)
	require.NoError(t, err)

	// Serialize only ever emits fields 7/8 together, so to exercise
	// ParsePreKeySignalMessage's both-or-neither check we hand-build a
	// body carrying field 7 (a Kyber id) without field 8 (its ciphertext)
	// using the same low-level helpers Serialize is built from.
	vByte := byte(msg.Version<<4) | byte(CurrentVersion)
	basePrefixed := msg.BaseKey.WithPrefix()
	idPrefixed := msg.IdentityKey.WithPrefix()
	var body []byte
	body = appendBytesField(body, 2, basePrefixed[:])
	body = appendBytesField(body, 3, idPrefixed[:])
	body = appendBytesField(body, 4, msg.Message.Bytes())
	body = appendVarintField(body, 5, uint64(msg.RegistrationID))
	body = appendVarintField(body, 6, uint64(msg.SignedPreKeyID))
	body = appendVarintField(body, 7, 3) // dangling Kyber id, no ciphertext field

	lopsided := append([]byte{vByte}, body...)
	_, err = ParsePreKeySignalMessage(lopsided)
	assert.ErrorIs(t, err, keys.ErrMissingKyberCiphertext)
}
