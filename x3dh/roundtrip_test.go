package x3dh_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
	"github.com/sxweetlollipop2912/tripleratchet/keys"
	"github.com/sxweetlollipop2912/tripleratchet/x3dh/alice"
	"github.com/sxweetlollipop2912/tripleratchet/x3dh/bob"
)

type bundle struct {
	identity keys.IdentityKeyPair
	signed   keys.SignedPreKey
	oneTime  keys.PreKey
	kyber    keys.KyberPreKey
}

func makeBundle(t *testing.T) bundle {
	t.Helper()
	identity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	signed, err := keys.GenerateSignedPreKey(identity, 1, 1000)
	require.NoError(t, err)
	oneTime, err := keys.GeneratePreKey(7)
	require.NoError(t, err)
	kyber, err := keys.GenerateKyberPreKey(identity, 3, 1000)
	require.NoError(t, err)
	return bundle{identity: identity, signed: signed, oneTime: oneTime, kyber: kyber}
}

func TestPQXDHRoundTripAgreesOnInitialChains(t *testing.T) {
	bobBundle := makeBundle(t)
	aliceIdentity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)

	aliceBasePriv, aliceBasePub, err := x25519.GenerateKeyPair()
	require.NoError(t, err)

	preKeyID := bobBundle.oneTime.ID
	kyberPub := bobBundle.kyber.KeyPair.Public

	res, err := alice.InitializeSession(alice.Params{
		Version:              4,
		OurIdentity:          aliceIdentity,
		OurBaseKey:           aliceBasePriv,
		LocalRegistrationID:  42,
		TheirIdentityKey:     bobBundle.identity.Public,
		TheirSignedPreKey:    bobBundle.signed.Public,
		TheirOneTimePreKey:   &bobBundle.oneTime.Public,
		TheirPreKeyID:        &preKeyID,
		TheirSignedPreKeyID:  bobBundle.signed.ID,
		TheirKyberPreKey:     &kyberPub,
		TheirKyberPreKeyID:   bobBundle.kyber.ID,
		RemoteRegistrationID: 7,
		PendingTimestampMs:   1234,
	})
	require.NoError(t, err)
	require.NotNil(t, res.State.PQRatchet)
	assert.False(t, res.State.PQRatchet.IsV0())
	assert.Equal(t, aliceBasePub, *res.State.AliceBaseKey)

	bobState, err := bob.InitializeSession(bob.Params{
		Version:              4,
		OurIdentity:          bobBundle.identity,
		OurSignedPreKey:      bobBundle.signed,
		OurOneTimePreKey:     &bobBundle.oneTime,
		OurKyberPreKey:       bobBundle.kyber,
		LocalRegistrationID:  7,
		RemoteRegistrationID: 42,
		TheirIdentityKey:     aliceIdentity.Public,
		TheirBaseKey:         aliceBasePub,
		TheirKyberCiphertext: res.KyberCiphertext,
	})
	require.NoError(t, err)

	// Bob's sender chain must equal Alice's receiver chain keyed by his
	// signed prekey: the raw X3DH-derived chain key seeds one side's
	// receiver ring and the other side's (unrotated) sender chain.
	aliceReceiverChain, ok := res.State.GetReceiverChain(bobBundle.signed.Public)
	require.True(t, ok)
	assert.Equal(t, bobState.Sender.ChainKey, aliceReceiverChain)
	assert.Equal(t, bobBundle.signed.Public, bobState.Sender.RatchetPublic)

	// Roots don't match yet: Alice has already taken one extra DH-ratchet
	// step with a fresh sending keypair that Bob hasn't seen. That step is
	// exactly what cipher.decryptWithState replays the first time Bob
	// receives a message on Alice's new ratchet public key.
	assert.NotEqual(t, res.State.RootKey, bobState.RootKey)
}

func TestV3IsRejectedByBob(t *testing.T) {
	bobBundle := makeBundle(t)
	_, err := bob.InitializeSession(bob.Params{
		Version:          3,
		OurIdentity:      bobBundle.identity,
		OurSignedPreKey:  bobBundle.signed,
		OurKyberPreKey:   bobBundle.kyber,
		TheirIdentityKey: bobBundle.identity.Public,
		TheirBaseKey:     bobBundle.signed.Public,
	})
	assert.ErrorIs(t, err, bob.ErrX3DHNoLongerSupported)
}

func TestMissingKyberCiphertextRejected(t *testing.T) {
	bobBundle := makeBundle(t)
	_, err := bob.InitializeSession(bob.Params{
		Version:          4,
		OurIdentity:      bobBundle.identity,
		OurSignedPreKey:  bobBundle.signed,
		OurKyberPreKey:   bobBundle.kyber,
		TheirIdentityKey: bobBundle.identity.Public,
		TheirBaseKey:     bobBundle.signed.Public,
	})
	assert.ErrorIs(t, err, keys.ErrMissingKyberCiphertext)
}
