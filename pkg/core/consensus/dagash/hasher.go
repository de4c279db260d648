package dagash

import (
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/sha3"
)

// hasher is a repetitive hasher allowing the same hash data structures to be
// reused between hash runs instead of requiring new ones to be created.
type hasher func(dest []byte, data []byte)

// makeHasher creates a repetitive hasher. The returned function is not
// thread safe!
func makeHasher(h hash.Hash) hasher {
	return func(dest []byte, data []byte) {
		h.Write(data)
		h.Sum(dest[:0])
		h.Reset()
	}
}

func newKeccak256() hasher { return makeHasher(sha3.NewLegacyKeccak256()) }
func newKeccak512() hasher { return makeHasher(sha3.NewLegacyKeccak512()) }

// fnv is an algorithm inspired by the FNV hash, which in some cases is used as
// a non-associative substitute for XOR. The prime is multiplied with the full
// 32-bit input, in contrast with the FNV-1 algorithm which multiplies one octet at
// a time.
func fnv(a, b uint32) uint32 {
	return a*0x01000193 ^ b
}

// fnvHash mixes data into mix word by word.
func fnvHash(mix []uint32, data []uint32) {
	for i := 0; i < len(mix); i++ {
		mix[i] = mix[i]*0x01000193 ^ data[i]
	}
}

// word reads the little-endian uint32 at word index i of buf.
func word(buf []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(buf[i*4:])
}
