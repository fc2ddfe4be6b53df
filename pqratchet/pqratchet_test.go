package pqratchet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestV0NoOp(t *testing.T) {
	v0 := NewV0()
	assert.True(t, v0.IsV0())

	msg, key, err := v0.Send()
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Nil(t, key)

	key, err = v0.Recv(nil)
	require.NoError(t, err)
	assert.Nil(t, key)

	_, err = v0.Recv([]byte{1})
	assert.ErrorIs(t, err, ErrMalformedMessage)

	assert.NoError(t, v0.RatchetStep([32]byte{1}))
}

func TestV1ConvergesAndCachesBetweenEpochs(t *testing.T) {
	var authKey [32]byte
	copy(authKey[:], []byte("facade level shared pqr auth key"))

	alice, err := NewV1Initiator(authKey)
	require.NoError(t, err)
	bob, err := NewV1Responder(authKey)
	require.NoError(t, err)
	require.False(t, alice.IsV0())
	require.False(t, bob.IsV0())

	var aliceKey, bobKey *[32]byte
	for i := 0; i < 300 && (aliceKey == nil || bobKey == nil); i++ {
		aMsg, _, err := alice.Send()
		require.NoError(t, err)
		bMsg, _, err := bob.Send()
		require.NoError(t, err)

		k, err := bob.Recv(aMsg)
		require.NoError(t, err)
		if k != nil {
			bobKey = k
		}
		k, err = alice.Recv(bMsg)
		require.NoError(t, err)
		if k != nil {
			aliceKey = k
		}
	}

	require.NotNil(t, aliceKey)
	require.NotNil(t, bobKey)
	assert.Equal(t, *bobKey, *aliceKey)

	// Once settled, repeated Send() calls return the same cached key
	// until the next epoch completes.
	_, key1, err := alice.Send()
	require.NoError(t, err)
	_, key2, err := alice.Send()
	require.NoError(t, err)
	require.NotNil(t, key1)
	require.NotNil(t, key2)
	assert.Equal(t, *key1, *key2)
}

func TestRecvRejectsShortMessage(t *testing.T) {
	var authKey [32]byte
	bob, err := NewV1Responder(authKey)
	require.NoError(t, err)

	_, err = bob.Recv([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
