package x25519

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRFC7748Vector is spec scenario 1: X25519(alicePriv, bobPub) must
// match the RFC 7748 §6.1 shared secret.
func TestRFC7748Vector(t *testing.T) {
	alicePrivHex := "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a"
	bobPubHex := "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f"
	expectedHex := "4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742"

	var priv PrivateKey
	b, err := hex.DecodeString(alicePrivHex)
	require.NoError(t, err)
	copy(priv[:], b)

	var pub PublicKey
	b, err = hex.DecodeString(bobPubHex)
	require.NoError(t, err)
	copy(pub[:], b)

	secret, err := Agreement(priv, pub)
	require.NoError(t, err)

	expected, err := hex.DecodeString(expectedHex)
	require.NoError(t, err)
	assert.Equal(t, expected, secret[:])
}

// TestGenerateKeyPairRoundTrip covers universal invariant 3.
func TestGenerateKeyPairRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	derived, err := priv.Public()
	require.NoError(t, err)
	assert.Equal(t, pub, derived)
}

// TestXEdDSASignVerify covers universal invariant 4.
func TestXEdDSASignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("triple ratchet signed prekey")
	sig, err := Sign(priv, msg, nil)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	assert.True(t, Verify(pub, msg, sig))

	tamperedMsg := append([]byte(nil), msg...)
	tamperedMsg[0] ^= 0x01
	assert.False(t, Verify(pub, tamperedMsg, sig))

	tamperedSig := append([]byte(nil), sig...)
	tamperedSig[0] ^= 0x01
	assert.False(t, Verify(pub, msg, tamperedSig))
}

func TestPrefixedPublicKeyRoundTrip(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	wire := pub.WithPrefix()
	assert.Equal(t, byte(0x05), wire[0])

	parsed, err := ParsePrefixed(wire[:])
	require.NoError(t, err)
	assert.Equal(t, pub, parsed)
}
