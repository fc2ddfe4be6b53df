package spqr

import (
	"errors"

	"github.com/klauspost/reedsolomon"
)

// ChunkSize is the size of one erasure-coded unit of an SPQR field.
const ChunkSize = 32

// NumPolys is the number of Reed-Solomon parity shards produced once the
// base (data) shards of a field have all been sent once.
const NumPolys = 16

// ErrErroneousData is returned when a chunk index is out of range for the
// field being decoded, or when reconstruction fails despite having
// received the expected number of shards.
var ErrErroneousData = errors.New("erroneous spqr payload")

// Chunk is one 32-byte erasure-coded unit of an SPQR field, tagged with
// its shard index.
type Chunk struct {
	Index uint32
	Data  [ChunkSize]byte
}

// Encoder streams a fixed-size byte field out as an indexed sequence of
// data shards followed by NumPolys recovery shards, Reed-Solomon style.
// Callers cycle NextChunk to keep resending until the peer's Decoder
// reports completion.
type Encoder struct {
	shards    [][]byte
	fieldLen  int
	cursor    int
	rsEncoder reedsolomon.Encoder
}

// NewEncoder splits field into ChunkSize-byte data shards (zero-padded in
// the last shard) and computes NumPolys parity shards over them.
func NewEncoder(field []byte) (*Encoder, error) {
	dataShards := (len(field) + ChunkSize - 1) / ChunkSize
	if dataShards == 0 {
		dataShards = 1
	}

	rsEnc, err := reedsolomon.New(dataShards, NumPolys)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, dataShards+NumPolys)
	for i := 0; i < dataShards; i++ {
		shard := make([]byte, ChunkSize)
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(field) {
			end = len(field)
		}
		copy(shard, field[start:end])
		shards[i] = shard
	}
	for i := dataShards; i < dataShards+NumPolys; i++ {
		shards[i] = make([]byte, ChunkSize)
	}

	if err := rsEnc.Encode(shards); err != nil {
		return nil, err
	}

	return &Encoder{shards: shards, fieldLen: len(field), rsEncoder: rsEnc}, nil
}

// NextChunk returns the next shard to send, cycling through data then
// parity shards indefinitely.
func (e *Encoder) NextChunk() Chunk {
	idx := e.cursor
	e.cursor = (e.cursor + 1) % len(e.shards)

	var c Chunk
	c.Index = uint32(idx)
	copy(c.Data[:], e.shards[idx])
	return c
}

// TotalShards is the number of distinct chunk indices this field's
// encoder produces (data shards plus parity shards).
func (e *Encoder) TotalShards() int {
	return len(e.shards)
}

// DataShards is the number of shards that carry the field's actual bytes,
// i.e. ⌈field_len / ChunkSize⌉.
func (e *Encoder) DataShards() int {
	return len(e.shards) - NumPolys
}

// Decoder accumulates chunks for one field by index and reconstructs the
// original bytes once enough shards have arrived, tolerating duplicates
// and reordering.
type Decoder struct {
	fieldLen   int
	dataShards int
	shards     [][]byte
	have       int
	complete   bool
	recovered  []byte
}

// NewDecoder prepares to receive chunks for a field of the given byte
// length.
func NewDecoder(fieldLen int) *Decoder {
	dataShards := (fieldLen + ChunkSize - 1) / ChunkSize
	if dataShards == 0 {
		dataShards = 1
	}
	return &Decoder{
		fieldLen:   fieldLen,
		dataShards: dataShards,
		shards:     make([][]byte, dataShards+NumPolys),
	}
}

// Accept ingests one chunk. Further chunks after IsComplete returns true
// are discarded silently, per spec §4.3.
func (d *Decoder) Accept(c Chunk) error {
	if d.complete {
		return nil
	}
	if int(c.Index) >= len(d.shards) {
		return ErrErroneousData
	}
	if d.shards[c.Index] != nil {
		return nil // duplicate, discard silently
	}

	shard := make([]byte, ChunkSize)
	copy(shard, c.Data[:])
	d.shards[c.Index] = shard
	d.have++

	if d.have >= d.dataShards {
		if err := d.tryReconstruct(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) tryReconstruct() error {
	rsEnc, err := reedsolomon.New(d.dataShards, NumPolys)
	if err != nil {
		return err
	}

	working := make([][]byte, len(d.shards))
	copy(working, d.shards)

	if err := rsEnc.ReconstructData(working); err != nil {
		return ErrErroneousData
	}

	out := make([]byte, 0, d.dataShards*ChunkSize)
	for i := 0; i < d.dataShards; i++ {
		out = append(out, working[i]...)
	}
	d.recovered = out[:d.fieldLen]
	d.complete = true
	return nil
}

// IsComplete reports whether the field has been fully reconstructed.
func (d *Decoder) IsComplete() bool {
	return d.complete
}

// Bytes returns the reconstructed field. Only valid once IsComplete is
// true.
func (d *Decoder) Bytes() []byte {
	return d.recovered
}
