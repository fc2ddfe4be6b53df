package spqr

import (
	"crypto/rand"
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/crypto/aes"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/hkdf"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/mlkem"

	stdsha256 "crypto/sha256"
)

// HeaderSize is the prefix of an ML-KEM-768 public key sent and MAC'd
// first, before the rest of the key (EncapsulationKeySize bytes) streams.
// Splitting the key lets the receiving side begin header-MAC verification
// before the full key has arrived.
const HeaderSize = 64

// ErrEpochOutOfRange is returned when a message's epoch falls outside the
// window the state machine currently tolerates.
var ErrEpochOutOfRange = errors.New("spqr epoch out of range")

// ErrReservedEpoch is returned for any message tagged epoch 0, which is
// reserved per spec §3/§4.3 and never sampled, sent, or accepted.
var ErrReservedEpoch = errors.New("spqr epoch 0 is reserved")

// State is the sum type over every phase of the send_ek (Alice) and
// send_ct (Bob) sides of one SPQR chain. Exactly one concrete type is
// live at a time; transitions are total functions over the enumeration,
// implemented as type switches in Chain.
type State interface {
	Epoch() uint64
	isSPQRState()
}

type baseState struct {
	epoch uint64
	auth  Authenticator
}

func (b baseState) Epoch() uint64 { return b.epoch }
func (baseState) isSPQRState()    {}

// --- Alice (send_ek) states ---

// KeysUnsampled is the initial state of an epoch before a keypair has
// been sampled.
type KeysUnsampled struct{ baseState }

// KeysSampled holds Alice's freshly sampled ML-KEM-768 keypair and is
// streaming header chunks.
type KeysSampled struct {
	baseState
	keyPair  mlkem.KeyPair768
	hdrEnc   *Encoder
}

// HeaderSent follows receipt of Bob's Ct1; Alice now streams the
// remainder of her public key (the encapsulation key field).
type HeaderSent struct {
	baseState
	keyPair  mlkem.KeyPair768
	ekEnc    *Encoder
	ct1Dec   *Decoder
}

// Ct1Received holds the reconstructed ct1 (and the es it decrypts to)
// while Alice finishes streaming her encapsulation key.
type Ct1Received struct {
	baseState
	keyPair mlkem.KeyPair768
	ekEnc   *Encoder
	es      [32]byte
	ct1     []byte
}

// EkSentCt1Received is the terminal Alice state for the epoch: her full
// key and the EkCt1Ack have gone out, and she is waiting for Bob's Ct2.
type EkSentCt1Received struct {
	baseState
	keyPair mlkem.KeyPair768
	es      [32]byte
	ct1     []byte
	ct2Dec  *Decoder
}

// --- Bob (send_ct) states ---

// NoHeaderReceived is the initial state of an epoch, collecting Alice's
// header chunks.
type NoHeaderReceived struct {
	baseState
	hdrDec *Decoder
}

// HeaderReceived holds the reconstructed header, MAC-verified, and has
// not yet sampled ct1.
type HeaderReceived struct {
	baseState
	header []byte
}

// Ct1Sampled holds Bob's encaps1 output (ct1, es) and is streaming ct1
// chunks while collecting Alice's encapsulation key.
type Ct1Sampled struct {
	baseState
	header []byte
	es     [32]byte
	ct1    []byte
	ct1Enc *Encoder
	ekDec  *Decoder
}

// EkReceivedCt1Sampled is reached when Alice's full key arrives before
// ct1 has finished streaming.
type EkReceivedCt1Sampled struct {
	baseState
	header []byte
	es     [32]byte
	ct1    []byte
	ct1Enc *Encoder
	fullEk []byte
}

// Ct1Acknowledged is reached when Alice's EkCt1Ack arrives before her
// full key has finished streaming.
type Ct1Acknowledged struct {
	baseState
	header []byte
	es     [32]byte
	ct1    []byte
	ekDec  *Decoder
}

// Ct2Sampled is the terminal Bob state for the epoch: encaps2 has run,
// the epoch secret has been emitted, and ct2 is streaming out.
type Ct2Sampled struct {
	baseState
	ct2Enc *Encoder
}

// encaps1Key derives the deterministic key both sides use to seal/open
// es under the header, since both hold the same header bytes and
// authenticator mac key once the header is reconstructed.
func encaps1Key(header []byte, auth Authenticator) ([32]byte, error) {
	derived, err := hkdf.Derive(stdsha256.New, append(append([]byte{}, header...), auth.MacKey[:]...), nil, []byte("Signal_PQCKA_V1_MLKEM768:encaps1"), 32)
	if err != nil {
		return [32]byte{}, err
	}
	var key [32]byte
	copy(key[:], derived)
	return key, nil
}

// sealEs is Bob's encaps1: commit to a freshly sampled 32-byte expanded
// secret under a key both sides can derive from the header alone.
func sealEs(header []byte, auth Authenticator) (es [32]byte, ct1 []byte, err error) {
	if _, err = rand.Read(es[:]); err != nil {
		return es, nil, err
	}
	key, err := encaps1Key(header, auth)
	if err != nil {
		return es, nil, err
	}
	var nonce [12]byte
	ct1, err = aes.EncryptGCMSIV(key, nonce, es[:], header)
	return es, ct1, err
}

// openEs is Alice's corresponding decrypt of Bob's ct1.
func openEs(header []byte, auth Authenticator, ct1 []byte) ([32]byte, error) {
	key, err := encaps1Key(header, auth)
	if err != nil {
		return [32]byte{}, err
	}
	var nonce [12]byte
	plaintext, err := aes.DecryptGCMSIV(key, nonce, ct1, header)
	if err != nil {
		return [32]byte{}, err
	}
	var es [32]byte
	copy(es[:], plaintext)
	return es, nil
}
