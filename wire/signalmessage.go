package wire

import (
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/hmac"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
)

// MacLength is the truncated MAC length appended to every SignalMessage.
const MacLength = 8

// CurrentVersion is the only session_version this codec emits or parses
// a SignalMessage body for; the triple ratchet configuration requires
// PQXDH (v4) and rejects the legacy v3 X3DH wire format outright.
const CurrentVersion = 4

var (
	// ErrLegacyCiphertextVersion is returned for a v3 message: the
	// triple ratchet configuration no longer accepts plain X3DH.
	ErrLegacyCiphertextVersion = errors.New("wire: legacy (v3) ciphertext version")
	// ErrUnrecognizedCiphertextVersion is returned for any version this
	// codec doesn't know how to parse.
	ErrUnrecognizedCiphertextVersion = errors.New("wire: unrecognized ciphertext version")
	// ErrInvalidMessage covers malformed field content: wrong lengths,
	// missing required fields, truncated bodies.
	ErrInvalidMessage = errors.New("wire: invalid message")
)

// SignalMessage is the double-ratchet message envelope: a sender
// ratchet public key, the counters needed to place it in its chain, the
// AES-CBC ciphertext, and (v4+) the opaque bytes pqratchet produced for
// this message.
type SignalMessage struct {
	Version             uint32
	SenderRatchetPublic x25519.PublicKey
	Counter             uint32
	PreviousCounter     uint32
	Ciphertext          []byte
	PQRatchetMessage    []byte
	Mac                 [MacLength]byte
}

func versionByte(v uint32) byte {
	return byte(v<<4) | byte(v)
}

func (m *SignalMessage) body() []byte {
	var b []byte
	prefixed := m.SenderRatchetPublic.WithPrefix()
	b = appendBytesField(b, 1, prefixed[:])
	b = appendVarintField(b, 2, uint64(m.Counter))
	b = appendVarintField(b, 3, uint64(m.PreviousCounter))
	b = appendBytesField(b, 4, m.Ciphertext)
	if m.Version >= 4 {
		b = appendBytesField(b, 5, m.PQRatchetMessage)
	}
	return b
}

func macInput(senderIdentity, receiverIdentity x25519.PublicKey, vByte byte, body []byte) []byte {
	buf := make([]byte, 0, 32+32+1+len(body))
	buf = append(buf, senderIdentity[:]...)
	buf = append(buf, receiverIdentity[:]...)
	buf = append(buf, vByte)
	buf = append(buf, body...)
	return buf
}

func computeMac(macKey []byte, senderIdentity, receiverIdentity x25519.PublicKey, vByte byte, body []byte) [MacLength]byte {
	full := hmac.SHA256(macKey, macInput(senderIdentity, receiverIdentity, vByte, body))
	var out [MacLength]byte
	copy(out[:], full[:MacLength])
	return out
}

// Serialize produces the wire bytes: version byte, proto body, 8-byte
// truncated MAC over (senderIdentity || receiverIdentity || versionByte
// || body).
func (m *SignalMessage) Serialize(macKey []byte, senderIdentity, receiverIdentity x25519.PublicKey) []byte {
	m.Mac = computeMac(macKey, senderIdentity, receiverIdentity, versionByte(m.Version), m.body())
	return m.Bytes()
}

// Bytes re-serializes the message using whatever is currently in m.Mac,
// without recomputing it. Used to embed an already-MAC'd SignalMessage
// inside a PreKeySignalMessage.
func (m *SignalMessage) Bytes() []byte {
	vByte := versionByte(m.Version)
	body := m.body()
	out := make([]byte, 0, 1+len(body)+MacLength)
	out = append(out, vByte)
	out = append(out, body...)
	out = append(out, m.Mac[:]...)
	return out
}

// VerifyMac recomputes the MAC over this message's own fields and
// compares it in constant time against m.Mac (populated by ParseSignalMessage).
func (m *SignalMessage) VerifyMac(macKey []byte, senderIdentity, receiverIdentity x25519.PublicKey) bool {
	expected := computeMac(macKey, senderIdentity, receiverIdentity, versionByte(m.Version), m.body())
	return hmac.Equal(expected[:], m.Mac[:])
}

// ParseSignalMessage parses the wire bytes of a SignalMessage without
// verifying its MAC (call VerifyMac separately, after message-key
// derivation).
func ParseSignalMessage(data []byte) (*SignalMessage, error) {
	if len(data) < 1+MacLength {
		return nil, ErrInvalidMessage
	}
	vByte := data[0]
	version := uint32(vByte >> 4)
	if version == 3 {
		return nil, ErrLegacyCiphertextVersion
	}
	if version != CurrentVersion {
		return nil, ErrUnrecognizedCiphertextVersion
	}

	body := data[1 : len(data)-MacLength]
	fields, err := parseFields(body)
	if err != nil {
		return nil, err
	}

	m := &SignalMessage{Version: version}
	copy(m.Mac[:], data[len(data)-MacLength:])

	senderBytes, ok := findBytes(fields, 1)
	if !ok {
		return nil, ErrInvalidMessage
	}
	senderPub, err := x25519.ParsePrefixed(senderBytes)
	if err != nil {
		return nil, ErrInvalidMessage
	}
	m.SenderRatchetPublic = senderPub

	counter, ok := findVarint(fields, 2)
	if !ok {
		return nil, ErrInvalidMessage
	}
	m.Counter = uint32(counter)

	prevCounter, ok := findVarint(fields, 3)
	if !ok {
		return nil, ErrInvalidMessage
	}
	m.PreviousCounter = uint32(prevCounter)

	ciphertext, ok := findBytes(fields, 4)
	if !ok {
		return nil, ErrInvalidMessage
	}
	m.Ciphertext = ciphertext

	if pqr, ok := findBytes(fields, 5); ok {
		m.PQRatchetMessage = pqr
	}

	return m, nil
}
