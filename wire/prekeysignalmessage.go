package wire

import (
	"github.com/sxweetlollipop2912/tripleratchet/crypto/x25519"
	"github.com/sxweetlollipop2912/tripleratchet/keys"
)

// PreKeySignalMessage wraps a SignalMessage with the handshake material
// Bob needs to derive the session before he can decrypt it: the prekey
// ids referenced, Alice's base key and identity key, and (v4) the Kyber
// ciphertext.
type PreKeySignalMessage struct {
	Version         uint32
	PreKeyID        *uint32
	BaseKey         x25519.PublicKey
	IdentityKey     x25519.PublicKey
	Message         *SignalMessage
	RegistrationID  uint32
	SignedPreKeyID  uint32
	KyberPreKeyID   *uint32
	KyberCiphertext []byte
}

// Serialize produces the wire bytes: a version byte (m.Version in the high
// nibble, CurrentVersion in the low nibble) followed by fields 1-8. There is no trailing
// MAC; the embedded SignalMessage carries its own. m.Message must
// already have its Mac populated (via SignalMessage.Serialize) before
// this is called.
func (m *PreKeySignalMessage) Serialize() []byte {
	vByte := byte(m.Version<<4) | byte(CurrentVersion)

	var body []byte
	if m.PreKeyID != nil {
		body = appendVarintField(body, 1, uint64(*m.PreKeyID))
	}
	basePrefixed := m.BaseKey.WithPrefix()
	body = appendBytesField(body, 2, basePrefixed[:])
	idPrefixed := m.IdentityKey.WithPrefix()
	body = appendBytesField(body, 3, idPrefixed[:])
	body = appendBytesField(body, 4, m.Message.Bytes())
	body = appendVarintField(body, 5, uint64(m.RegistrationID))
	body = appendVarintField(body, 6, uint64(m.SignedPreKeyID))
	if m.KyberPreKeyID != nil && len(m.KyberCiphertext) > 0 {
		body = appendVarintField(body, 7, uint64(*m.KyberPreKeyID))
		body = appendBytesField(body, 8, m.KyberCiphertext)
	}

	out := make([]byte, 0, 1+len(body))
	out = append(out, vByte)
	out = append(out, body...)
	return out
}

// ParsePreKeySignalMessage parses the wire bytes of a PreKeySignalMessage.
func ParsePreKeySignalMessage(data []byte) (*PreKeySignalMessage, error) {
	if len(data) < 1 {
		return nil, ErrInvalidMessage
	}
	version := uint32(data[0] >> 4)
	if version == 3 {
		return nil, ErrLegacyCiphertextVersion
	}
	if version != CurrentVersion {
		return nil, ErrUnrecognizedCiphertextVersion
	}

	fields, err := parseFields(data[1:])
	if err != nil {
		return nil, err
	}

	m := &PreKeySignalMessage{Version: version}

	if v, ok := findVarint(fields, 1); ok {
		id := uint32(v)
		m.PreKeyID = &id
	}

	baseBytes, ok := findBytes(fields, 2)
	if !ok {
		return nil, ErrInvalidMessage
	}
	baseKey, err := x25519.ParsePrefixed(baseBytes)
	if err != nil {
		return nil, ErrInvalidMessage
	}
	m.BaseKey = baseKey

	idBytes, ok := findBytes(fields, 3)
	if !ok {
		return nil, ErrInvalidMessage
	}
	idKey, err := x25519.ParsePrefixed(idBytes)
	if err != nil {
		return nil, ErrInvalidMessage
	}
	m.IdentityKey = idKey

	msgBytes, ok := findBytes(fields, 4)
	if !ok {
		return nil, ErrInvalidMessage
	}
	embedded, err := ParseSignalMessage(msgBytes)
	if err != nil {
		return nil, err
	}
	m.Message = embedded

	regID, ok := findVarint(fields, 5)
	if !ok {
		return nil, ErrInvalidMessage
	}
	m.RegistrationID = uint32(regID)

	spkID, ok := findVarint(fields, 6)
	if !ok {
		return nil, ErrInvalidMessage
	}
	m.SignedPreKeyID = uint32(spkID)

	kyberID, hasID := findVarint(fields, 7)
	kyberCT, hasCT := findBytes(fields, 8)
	if hasID != hasCT {
		return nil, keys.ErrMissingKyberCiphertext
	}
	if hasID {
		id := uint32(kyberID)
		m.KyberPreKeyID = &id
		m.KyberCiphertext = kyberCT
	}

	return m, nil
}
