package ratchet

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hb(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// TestChainKeyStep checks scenario 3 from the spec: a single ChainKey.Next
// and MessageKeys derivation against fixed vectors.
func TestChainKeyStep(t *testing.T) {
	seed := hb(t, "8ab72d6f4cc5ac0d387eaf463378ddb28edd07385b1cb01250c715982e7ad48f")
	var ck ChainKey
	copy(ck.Key[:], seed)
	ck.Index = 0

	next := ck.Next()
	assert.Equal(t, uint32(1), next.Index)
	assert.Equal(t, hb(t, "28e8f8fee54b801eef7c5cfb2f17f32c7b334485bbb70fac6ec10342a246d15d"), next.Key[:])

	mkSeed := ck.MessageKeySeed()
	mk, err := DeriveMessageKeys(mkSeed, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, hb(t, "bf51e9d75e0e31031051f82a2491ffc084fa298b7793bd9db620056febf45217"), mk.CipherKey[:])
	assert.Equal(t, hb(t, "c6c77d6a73a354337a56435e34607dfe48e3ace14e77314dc6abc172e7a7030b"), mk.MacKey[:])
}

// TestChainKeyNextIsDeterministicAndAdvances covers universal invariant 2.
func TestChainKeyNextIsDeterministicAndAdvances(t *testing.T) {
	var ck ChainKey
	ck.Key = [32]byte{1, 2, 3}
	ck.Index = 5

	next := ck.Next()
	assert.Equal(t, ck.Index+1, next.Index)
	assert.NotEqual(t, ck.Key, next.Key)

	again := ck.Next()
	assert.Equal(t, next.Key, again.Key)
}

// TestDeriveMessageKeysDeterministic covers universal invariant 1.
func TestDeriveMessageKeysDeterministic(t *testing.T) {
	seed := [32]byte{9, 9, 9}
	salt := []byte("pq-salt")

	a, err := DeriveMessageKeys(seed, 4, salt)
	require.NoError(t, err)
	b, err := DeriveMessageKeys(seed, 4, salt)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DeriveMessageKeys(seed, 4, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.CipherKey, c.CipherKey)
}
