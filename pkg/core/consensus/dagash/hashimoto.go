package dagash

import (
	"encoding/binary"

	"github.com/chronodrachma/dagpow/pkg/core/types"
)

// lookupFunc returns the 64-byte dataset item at index.
type lookupFunc func(index uint32) []byte

// hashimoto aggregates data from the full dataset in order to produce our final
// value for a particular header hash and nonce. size is the logical dataset
// size of the epoch, even when items are recomputed from a cache.
func hashimoto(hash types.Hash, nonce uint64, size uint64, lookup lookupFunc) (digest, result types.Hash) {
	// Calculate the number of theoretical rows (we use one buffer nonetheless)
	rows := uint32(size / MixBytes)

	// Combine header+nonce into a 64 byte seed
	seed := make([]byte, 40, 40+HashBytes+types.HashSize)
	copy(seed, hash[:])
	binary.LittleEndian.PutUint64(seed[32:], nonce)

	keccak512 := newKeccak512()
	keccak512(seed, seed)
	seed = seed[:HashBytes]
	seedHead := binary.LittleEndian.Uint32(seed)

	// Start the mix with replicated seed
	var mix [MixBytes / 4]uint32
	for i := range mix {
		mix[i] = binary.LittleEndian.Uint32(seed[i%HashWords*4:])
	}
	// Mix in random dataset nodes
	var temp [MixBytes / 4]uint32

	for i := 0; i < Accesses; i++ {
		parent := fnv(uint32(i)^seedHead, mix[i%len(mix)]) % rows
		for j := uint32(0); j < MixBytes/HashBytes; j++ {
			item := lookup(2*parent + j)
			for w := uint32(0); w < HashWords; w++ {
				temp[j*HashWords+w] = word(item, w)
			}
		}
		fnvHash(mix[:], temp[:])
	}
	// Compress mix
	for i := 0; i < len(mix); i += 4 {
		mix[i/4] = fnv(fnv(fnv(mix[i], mix[i+1]), mix[i+2]), mix[i+3])
	}
	for i, val := range mix[:len(mix)/4] {
		binary.LittleEndian.PutUint32(digest[i*4:], val)
	}
	keccak256 := newKeccak256()
	keccak256(result[:], append(seed, digest[:]...))
	return digest, result
}

// hashimotoLight aggregates data from the full dataset (using only a small
// in-memory cache) in order to produce our final value for a particular header
// hash and nonce.
func hashimotoLight(size uint64, cache []byte, hash types.Hash, nonce uint64) (types.Hash, types.Hash) {
	builder := NewItemBuilder(cache)
	item := make([]byte, HashBytes)

	lookup := func(index uint32) []byte {
		builder.Build(item, index)
		return item
	}
	return hashimoto(hash, nonce, size, lookup)
}

// hashimotoFull aggregates data from the full dataset (using the full in-memory
// dataset) in order to produce our final value for a particular header hash and
// nonce.
func hashimotoFull(dataset []byte, hash types.Hash, nonce uint64) (types.Hash, types.Hash) {
	lookup := func(index uint32) []byte {
		offset := uint64(index) * HashBytes
		return dataset[offset : offset+HashBytes]
	}
	return hashimoto(hash, nonce, uint64(len(dataset)), lookup)
}
