package spqr

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run drives alice and bob in lockstep: each round, both sides Send one
// message to the other, with a given chance of silently dropping a
// message in transit. Returns the epoch secrets each side produced, in
// the order they completed.
func run(t *testing.T, rounds int, dropProb float64, seed int64) (aliceSecrets, bobSecrets [][32]byte) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	var authKey [32]byte
	copy(authKey[:], []byte("shared pqr auth key from pqxdh!!"))

	alice, err := NewAliceChain(authKey)
	require.NoError(t, err)
	bob, err := NewBobChain(authKey)
	require.NoError(t, err)

	for i := 0; i < rounds; i++ {
		aMsg, err := alice.Send()
		require.NoError(t, err)
		bMsg, err := bob.Send()
		require.NoError(t, err)

		if rng.Float64() >= dropProb {
			secret, err := bob.Recv(aMsg)
			require.NoError(t, err)
			if secret != nil {
				bobSecrets = append(bobSecrets, *secret)
			}
		}
		if rng.Float64() >= dropProb {
			secret, err := alice.Recv(bMsg)
			require.NoError(t, err)
			if secret != nil {
				aliceSecrets = append(aliceSecrets, *secret)
			}
		}
	}
	return aliceSecrets, bobSecrets
}

func TestChainConvergesNoLoss(t *testing.T) {
	aliceSecrets, bobSecrets := run(t, 400, 0, 1)
	require.NotEmpty(t, aliceSecrets)
	require.NotEmpty(t, bobSecrets)
	assert.Equal(t, bobSecrets[0], aliceSecrets[0])
}

// TestChainConvergesWithLoss covers universal invariant 9: with up to 30%
// random message loss, a lockstep exchange still produces byte-identical
// epoch secrets within a bounded number of rounds.
func TestChainConvergesWithLoss(t *testing.T) {
	aliceSecrets, bobSecrets := run(t, 1500, 0.3, 42)
	require.NotEmpty(t, aliceSecrets, "alice should complete at least one epoch within 1500 rounds")
	require.NotEmpty(t, bobSecrets, "bob should complete at least one epoch within 1500 rounds")
	assert.Equal(t, bobSecrets[0], aliceSecrets[0])
}

func TestEpochOutOfRangeRejected(t *testing.T) {
	var authKey [32]byte
	bob, err := NewBobChain(authKey)
	require.NoError(t, err)

	_, err = bob.Recv(Message{Epoch: 5, Kind: PayloadHdr})
	assert.ErrorIs(t, err, ErrEpochOutOfRange)
}

// TestEpochZeroRejected covers spec §3/§4.3: epoch 0 is reserved and must
// never be accepted, even as a brand-new chain's very first inbound
// message.
func TestEpochZeroRejected(t *testing.T) {
	var authKey [32]byte
	bob, err := NewBobChain(authKey)
	require.NoError(t, err)
	require.Equal(t, uint64(1), bob.Epoch())

	_, err = bob.Recv(Message{Epoch: 0, Kind: PayloadHdr})
	assert.ErrorIs(t, err, ErrReservedEpoch)

	alice, err := NewAliceChain(authKey)
	require.NoError(t, err)
	_, err = alice.Recv(Message{Epoch: 0, Kind: PayloadCt1})
	assert.ErrorIs(t, err, ErrReservedEpoch)
}

// TestStaleEpochRejected covers spec §4.3's epoch-out-of-range rule in
// the other direction: once a side has moved past an epoch, a message
// still tagged with that superseded epoch must fail with
// ErrEpochOutOfRange rather than being silently dropped.
func TestStaleEpochRejected(t *testing.T) {
	var authKey [32]byte
	copy(authKey[:], []byte("shared pqr auth key from pqxdh!!"))

	alice, err := NewAliceChain(authKey)
	require.NoError(t, err)
	bob, err := NewBobChain(authKey)
	require.NoError(t, err)

	for i := 0; i < 400 && alice.Epoch() < 2; i++ {
		aMsg, err := alice.Send()
		require.NoError(t, err)
		bMsg, err := bob.Send()
		require.NoError(t, err)
		_, err = bob.Recv(aMsg)
		require.NoError(t, err)
		_, err = alice.Recv(bMsg)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, alice.Epoch(), uint64(2), "alice should have rolled past epoch 1 within 400 rounds")

	_, err = alice.Recv(Message{Epoch: 1, Kind: PayloadHdr})
	assert.ErrorIs(t, err, ErrEpochOutOfRange)
}
