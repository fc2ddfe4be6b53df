package wire

import (
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/spqr"
)

// SPQRMessageVersion is the only version byte this codec emits or parses
// for an spqr.Message.
const SPQRMessageVersion = 0x01

// spqrAckFlag is ORed into the payload-kind tag byte when Message.Ack is
// set. The sticky ack flag travels alongside whatever payload kind the
// sender is also streaming (see spqr.PayloadKind), so it shares the tag
// byte rather than claiming its own field.
const spqrAckFlag = 0x80

// ErrUnrecognizedSPQRVersion is returned for any version byte this codec
// doesn't know how to parse.
var ErrUnrecognizedSPQRVersion = errors.New("wire: unrecognized spqr message version")

// EncodeSPQRMessage serializes an spqr.Message per spec §3/§6: a version
// byte, the epoch and chunk-index as varints, a payload-kind/ack tag
// byte, and (for the chunked payload kinds) the raw chunk bytes. A bare
// ack/no-op message (PayloadNone) carries no chunk bytes at all.
func EncodeSPQRMessage(m spqr.Message) []byte {
	buf := make([]byte, 0, 1+10+5+1+spqr.ChunkSize)
	buf = append(buf, SPQRMessageVersion)
	buf = appendUvarint(buf, m.Epoch)
	buf = appendUvarint(buf, uint64(m.Chunk.Index))

	tag := byte(m.Kind)
	if m.Ack {
		tag |= spqrAckFlag
	}
	buf = append(buf, tag)

	if m.Kind != spqr.PayloadNone {
		buf = append(buf, m.Chunk.Data[:]...)
	}
	return buf
}

// DecodeSPQRMessage parses the bytes EncodeSPQRMessage produces.
func DecodeSPQRMessage(data []byte) (spqr.Message, error) {
	if len(data) < 1 {
		return spqr.Message{}, ErrTruncated
	}
	if data[0] != SPQRMessageVersion {
		return spqr.Message{}, ErrUnrecognizedSPQRVersion
	}
	rest := data[1:]

	epoch, rest, err := readUvarint(rest)
	if err != nil {
		return spqr.Message{}, err
	}
	index, rest, err := readUvarint(rest)
	if err != nil {
		return spqr.Message{}, err
	}
	if len(rest) < 1 {
		return spqr.Message{}, ErrTruncated
	}
	tag := rest[0]
	rest = rest[1:]

	m := spqr.Message{
		Epoch: epoch,
		Kind:  spqr.PayloadKind(tag &^ spqrAckFlag),
		Ack:   tag&spqrAckFlag != 0,
	}
	if m.Kind != spqr.PayloadNone {
		if len(rest) < spqr.ChunkSize {
			return spqr.Message{}, ErrTruncated
		}
		m.Chunk.Index = uint32(index)
		copy(m.Chunk.Data[:], rest[:spqr.ChunkSize])
	}
	return m, nil
}
