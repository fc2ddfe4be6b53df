package spqr

import (
	"github.com/sxweetlollipop2912/tripleratchet/crypto/hmac"
	"github.com/sxweetlollipop2912/tripleratchet/crypto/mlkem"
)

// PayloadKind discriminates an SPQR message's chunked payload, per spec
// §3. The EkCt1Ack/Ct1Ack acknowledgement is carried as a sticky flag
// (Message.Ack) rather than its own exclusive payload, since Alice keeps
// streaming her encapsulation key regardless of whether Bob has already
// seen it — pausing the data stream to send a bare flag would only slow
// convergence on a lossy channel.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadHdr
	PayloadEk
	PayloadCt1
	PayloadCt2
)

// ct1FieldSize is the wire length of Bob's encaps1 commitment: a
// GCM-SIV-sealed 32-byte expanded secret (32-byte plaintext + 16-byte
// tag).
const ct1FieldSize = 32 + 16

// Message is one wire unit of the SPQR exchange: an epoch tag, a payload
// kind, a chunk (valid for the chunked kinds), and the sticky ack flag.
type Message struct {
	Epoch uint64
	Kind  PayloadKind
	Chunk Chunk
	Ack   bool
}

func chunkMessage(epoch uint64, kind PayloadKind, c Chunk, ack bool) Message {
	return Message{Epoch: epoch, Kind: kind, Chunk: c, Ack: ack}
}

func flagMessage(epoch uint64, ack bool) Message {
	return Message{Epoch: epoch, Kind: PayloadNone, Ack: ack}
}

// Chain drives one side of the SPQR state machine across epochs. A
// single Chain instance plays both the send_ek and send_ct roles over
// time, since the role reverses on every epoch boundary.
type Chain struct {
	state State
}

// firstEpoch is the first epoch a chain ever uses. Epoch 0 is reserved
// per spec §3/§4.3 and is never sampled, sent, or accepted; every chain
// starts life at epoch 1.
const firstEpoch = 1

// NewAliceChain starts a chain in the send_ek role at epoch 1, the role
// the PQXDH initiator takes in the first SPQR epoch.
func NewAliceChain(authKey [32]byte) (*Chain, error) {
	auth, err := NewAuthenticator(authKey)
	if err != nil {
		return nil, err
	}
	return &Chain{state: KeysUnsampled{baseState{epoch: firstEpoch, auth: auth}}}, nil
}

// NewBobChain starts a chain in the send_ct role at epoch 1.
func NewBobChain(authKey [32]byte) (*Chain, error) {
	auth, err := NewAuthenticator(authKey)
	if err != nil {
		return nil, err
	}
	return &Chain{
		state: NoHeaderReceived{
			baseState: baseState{epoch: firstEpoch, auth: auth},
			hdrDec:    NewDecoder(HeaderSize + 32),
		},
	}, nil
}

// Epoch reports the chain's current epoch.
func (c *Chain) Epoch() uint64 { return c.state.Epoch() }

// Send returns the next message this side should transmit. States with
// nothing new to say return a PayloadNone message.
func (c *Chain) Send() (Message, error) {
	epoch := c.state.Epoch()

	switch s := c.state.(type) {
	case KeysUnsampled:
		kp, err := mlkem.GenerateKeyPair768()
		if err != nil {
			return Message{}, err
		}
		header := append([]byte{}, kp.Public[:HeaderSize]...)
		tag := s.auth.HeaderAuth(header)
		hdrEnc, err := NewEncoder(append(header, tag...))
		if err != nil {
			return Message{}, err
		}
		c.state = KeysSampled{baseState: s.baseState, keyPair: kp, hdrEnc: hdrEnc}
		return chunkMessage(epoch, PayloadHdr, hdrEnc.NextChunk(), false), nil

	case KeysSampled:
		return chunkMessage(epoch, PayloadHdr, s.hdrEnc.NextChunk(), false), nil

	case HeaderSent:
		return chunkMessage(epoch, PayloadEk, s.ekEnc.NextChunk(), false), nil

	case Ct1Received:
		return chunkMessage(epoch, PayloadEk, s.ekEnc.NextChunk(), true), nil

	case EkSentCt1Received:
		return flagMessage(epoch, true), nil

	case NoHeaderReceived:
		return flagMessage(epoch, false), nil

	case HeaderReceived:
		es, ct1, err := sealEs(s.header, s.auth)
		if err != nil {
			return Message{}, err
		}
		ct1Enc, err := NewEncoder(ct1)
		if err != nil {
			return Message{}, err
		}
		c.state = Ct1Sampled{
			baseState: s.baseState,
			header:    s.header,
			es:        es,
			ct1:       ct1,
			ct1Enc:    ct1Enc,
			ekDec:     NewDecoder(mlkem.KEM768PublicKeySize - HeaderSize),
		}
		return chunkMessage(epoch, PayloadCt1, ct1Enc.NextChunk(), false), nil

	case Ct1Sampled:
		return chunkMessage(epoch, PayloadCt1, s.ct1Enc.NextChunk(), false), nil

	case EkReceivedCt1Sampled:
		return chunkMessage(epoch, PayloadCt1, s.ct1Enc.NextChunk(), false), nil

	case Ct1Acknowledged:
		return flagMessage(epoch, false), nil

	case Ct2Sampled:
		return chunkMessage(epoch, PayloadCt2, s.ct2Enc.NextChunk(), false), nil
	}

	return flagMessage(epoch, false), nil
}

// Recv ingests an inbound message. It returns a non-nil epoch secret
// exactly when this call completes an epoch's key agreement.
func (c *Chain) Recv(msg Message) (*[32]byte, error) {
	if msg.Epoch == 0 {
		return nil, ErrReservedEpoch
	}
	current := c.state.Epoch()
	if msg.Epoch < current {
		return nil, ErrEpochOutOfRange
	}
	if msg.Epoch > current+1 {
		return nil, ErrEpochOutOfRange
	}
	if msg.Epoch == current+1 {
		s, ok := c.state.(Ct2Sampled)
		if !ok {
			return nil, ErrEpochOutOfRange
		}
		oldAuth := s.auth
		newAuth, err := oldAuth.Advance(msg.Epoch)
		if err != nil {
			return nil, err
		}
		oldAuth.Zero()
		// Ct2Sampled is only ever reached by the send_ct (Bob) side of an
		// epoch. Once the peer has moved on, this side takes the send_ek
		// role for the new epoch, swapping with whatever the peer becomes
		// (see completeDecaps2, which rolls the send_ek side into
		// NoHeaderReceived for the same reason in reverse).
		c.state = KeysUnsampled{baseState{epoch: msg.Epoch, auth: newAuth}}
		return c.Recv(msg)
	}

	switch s := c.state.(type) {
	case KeysUnsampled, HeaderReceived:
		return nil, nil

	case NoHeaderReceived:
		if msg.Kind != PayloadHdr {
			return nil, nil
		}
		if err := s.hdrDec.Accept(msg.Chunk); err != nil {
			return nil, err
		}
		if !s.hdrDec.IsComplete() {
			c.state = s
			return nil, nil
		}
		full := s.hdrDec.Bytes()
		if len(full) < HeaderSize+32 {
			return nil, ErrErroneousData
		}
		header := full[:HeaderSize]
		tag := full[HeaderSize:]
		expected := s.auth.HeaderAuth(header)
		if !hmac.Equal(tag, expected) {
			return nil, ErrErroneousData
		}
		c.state = HeaderReceived{baseState: s.baseState, header: append([]byte{}, header...)}
		return nil, nil

	case KeysSampled:
		if msg.Kind != PayloadCt1 {
			return nil, nil
		}
		ekEnc, err := NewEncoder(s.keyPair.Public[HeaderSize:])
		if err != nil {
			return nil, err
		}
		ct1Dec := NewDecoder(ct1FieldSize)
		c.state = HeaderSent{baseState: s.baseState, keyPair: s.keyPair, ekEnc: ekEnc, ct1Dec: ct1Dec}
		return c.Recv(msg)

	case HeaderSent:
		if msg.Kind != PayloadCt1 {
			return nil, nil
		}
		if err := s.ct1Dec.Accept(msg.Chunk); err != nil {
			return nil, err
		}
		if !s.ct1Dec.IsComplete() {
			c.state = s
			return nil, nil
		}
		es, err := openEs(s.keyPair.Public[:HeaderSize], s.auth, s.ct1Dec.Bytes())
		if err != nil {
			return nil, err
		}
		c.state = Ct1Received{
			baseState: s.baseState,
			keyPair:   s.keyPair,
			ekEnc:     s.ekEnc,
			es:        es,
			ct1:       s.ct1Dec.Bytes(),
		}
		return nil, nil

	case Ct1Received:
		if msg.Kind != PayloadCt2 {
			return nil, nil
		}
		c.state = EkSentCt1Received{
			baseState: s.baseState,
			keyPair:   s.keyPair,
			es:        s.es,
			ct1:       s.ct1,
			ct2Dec:    NewDecoder(mlkem.KEM768CiphertextSize + 32),
		}
		return c.Recv(msg)

	case EkSentCt1Received:
		if msg.Kind != PayloadCt2 {
			return nil, nil
		}
		if err := s.ct2Dec.Accept(msg.Chunk); err != nil {
			return nil, err
		}
		if !s.ct2Dec.IsComplete() {
			c.state = s
			return nil, nil
		}
		next, secret, err := completeDecaps2(s.baseState, s.keyPair, s.ct1, s.es, s.ct2Dec.Bytes())
		if err != nil {
			return nil, err
		}
		c.state = next
		return secret, nil

	case Ct1Sampled:
		next := s
		changed := false
		if msg.Kind == PayloadEk {
			if err := s.ekDec.Accept(msg.Chunk); err != nil {
				return nil, err
			}
			changed = true
		}
		if msg.Ack {
			c.state = Ct1Acknowledged{
				baseState: s.baseState,
				header:    s.header,
				es:        s.es,
				ct1:       s.ct1,
				ekDec:     s.ekDec,
			}
			return c.afterAck()
		}
		if next.ekDec.IsComplete() {
			c.state = EkReceivedCt1Sampled{
				baseState: s.baseState,
				header:    s.header,
				es:        s.es,
				ct1:       s.ct1,
				ct1Enc:    s.ct1Enc,
				fullEk:    append(append([]byte{}, s.header...), s.ekDec.Bytes()...),
			}
			return nil, nil
		}
		if changed {
			c.state = next
		}
		return nil, nil

	case EkReceivedCt1Sampled:
		if !msg.Ack {
			return nil, nil
		}
		return c.completeEncaps2(s.baseState, s.fullEk, s.ct1, s.es)

	case Ct1Acknowledged:
		if msg.Kind != PayloadEk {
			return nil, nil
		}
		if err := s.ekDec.Accept(msg.Chunk); err != nil {
			return nil, err
		}
		if !s.ekDec.IsComplete() {
			c.state = s
			return nil, nil
		}
		fullEk := append(append([]byte{}, s.header...), s.ekDec.Bytes()...)
		return c.completeEncaps2(s.baseState, fullEk, s.ct1, s.es)

	case Ct2Sampled:
		return nil, nil
	}

	return nil, nil
}

// afterAck re-enters Recv to let a Ct1Acknowledged state immediately
// notice an ekDec that was already complete before the ack arrived.
func (c *Chain) afterAck() (*[32]byte, error) {
	s, ok := c.state.(Ct1Acknowledged)
	if !ok || !s.ekDec.IsComplete() {
		return nil, nil
	}
	fullEk := append(append([]byte{}, s.header...), s.ekDec.Bytes()...)
	return c.completeEncaps2(s.baseState, fullEk, s.ct1, s.es)
}

// completeEncaps2 is Bob's shared final step once ct1 has been
// acknowledged and Alice's full encapsulation key has been reconstructed.
func (c *Chain) completeEncaps2(base baseState, fullEk []byte, ct1 []byte, es [32]byte) (*[32]byte, error) {
	mlkemCt, shared, err := mlkem.Encapsulate768(fullEk)
	if err != nil {
		return nil, err
	}
	tag := base.auth.CiphertextAuth(ct1, mlkemCt[:])
	ct2Field := append(append([]byte{}, mlkemCt[:]...), tag...)
	ct2Enc, err := NewEncoder(ct2Field)
	if err != nil {
		return nil, err
	}

	combined := append(append([]byte{}, shared[:]...), es[:]...)
	secret, err := EpochSecret(combined, base.epoch)
	if err != nil {
		return nil, err
	}

	c.state = Ct2Sampled{baseState: base, ct2Enc: ct2Enc}
	return &secret, nil
}

// completeDecaps2 is Alice's shared final step once Bob's ct2 has been
// fully reconstructed; it also rolls the authenticator and role into the
// next epoch.
func completeDecaps2(base baseState, kp mlkem.KeyPair768, ct1 []byte, es [32]byte, ct2Bytes []byte) (nextState State, secret *[32]byte, err error) {
	if len(ct2Bytes) < mlkem.KEM768CiphertextSize {
		return nil, nil, ErrErroneousData
	}
	mlkemCt := ct2Bytes[:mlkem.KEM768CiphertextSize]
	tag := ct2Bytes[mlkem.KEM768CiphertextSize:]

	expectedTag := base.auth.CiphertextAuth(ct1, mlkemCt)
	if !hmac.Equal(tag, expectedTag) {
		return nil, nil, ErrErroneousData
	}

	shared, err := mlkem.Decapsulate768(kp.Private[:], mlkemCt)
	if err != nil {
		return nil, nil, err
	}

	combined := append(append([]byte{}, shared[:]...), es[:]...)
	secretVal, err := EpochSecret(combined, base.epoch)
	if err != nil {
		return nil, nil, err
	}

	newAuth, err := base.auth.Advance(base.epoch + 1)
	if err != nil {
		return nil, nil, err
	}
	base.auth.Zero()
	next := NoHeaderReceived{
		baseState: baseState{epoch: base.epoch + 1, auth: newAuth},
		hdrDec:    NewDecoder(HeaderSize + 32),
	}
	return next, &secretVal, nil
}
