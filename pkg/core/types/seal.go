package types

import (
	"encoding/binary"
	"fmt"
)

// Result is what a proof-of-work compute call produces for one header hash
// and nonce. Success is false only when the handle had already been closed.
type Result struct {
	Result  Hash // Final digest compared against the difficulty target.
	MixHash Hash // Compressed mix, published alongside the nonce.
	Success bool
}

// Seal is the proof a miner publishes: the nonce it found for a header hash
// at a block height, plus the mix digest that lets verifiers skip work.
type Seal struct {
	Number     uint64
	HeaderHash Hash
	Nonce      uint64
	MixDigest  Hash
}

// SealSize is the length of a serialized Seal.
const SealSize = 8 + HashSize + 8 + HashSize

// Serialize returns a deterministic 80-byte encoding of the seal.
// Field order: Number(8) || HeaderHash(32) || Nonce(8) || MixDigest(32)
func (s *Seal) Serialize() []byte {
	buf := make([]byte, SealSize)
	binary.BigEndian.PutUint64(buf[0:8], s.Number)
	copy(buf[8:40], s.HeaderHash[:])
	binary.BigEndian.PutUint64(buf[40:48], s.Nonce)
	copy(buf[48:80], s.MixDigest[:])
	return buf
}

// DeserializeSeal decodes the output of Serialize.
func DeserializeSeal(buf []byte) (*Seal, error) {
	if len(buf) != SealSize {
		return nil, fmt.Errorf("seal must be %d bytes, got %d", SealSize, len(buf))
	}
	s := &Seal{
		Number: binary.BigEndian.Uint64(buf[0:8]),
		Nonce:  binary.BigEndian.Uint64(buf[40:48]),
	}
	copy(s.HeaderHash[:], buf[8:40])
	copy(s.MixDigest[:], buf[48:80])
	return s, nil
}
