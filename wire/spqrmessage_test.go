package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sxweetlollipop2912/tripleratchet/spqr"
)

func TestSPQRMessageRoundTripChunked(t *testing.T) {
	var chunk spqr.Chunk
	chunk.Index = 7
	for i := range chunk.Data {
		chunk.Data[i] = byte(i)
	}
	msg := spqr.Message{Epoch: 300, Kind: spqr.PayloadCt1, Chunk: chunk, Ack: true}

	data := EncodeSPQRMessage(msg)
	assert.Equal(t, byte(SPQRMessageVersion), data[0])

	parsed, err := DecodeSPQRMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestSPQRMessageRoundTripFlagOnly(t *testing.T) {
	msg := spqr.Message{Epoch: 12, Kind: spqr.PayloadNone, Ack: true}

	data := EncodeSPQRMessage(msg)
	// A flag-only message carries no chunk payload: version + epoch
	// varint + index varint + tag byte, nothing more.
	assert.Less(t, len(data), 1+spqr.ChunkSize)

	parsed, err := DecodeSPQRMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestSPQRMessageRejectsBadVersion(t *testing.T) {
	data := EncodeSPQRMessage(spqr.Message{Epoch: 1, Kind: spqr.PayloadHdr})
	data[0] = 0x02
	_, err := DecodeSPQRMessage(data)
	assert.ErrorIs(t, err, ErrUnrecognizedSPQRVersion)
}

func TestSPQRMessageRejectsTruncatedChunk(t *testing.T) {
	data := EncodeSPQRMessage(spqr.Message{Epoch: 1, Kind: spqr.PayloadHdr})
	truncated := data[:len(data)-1]
	_, err := DecodeSPQRMessage(truncated)
	assert.ErrorIs(t, err, ErrTruncated)
}
