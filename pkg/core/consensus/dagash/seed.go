package dagash

import (
	"github.com/chronodrachma/dagpow/pkg/core/types"
)

// SeedHash is the seed to use for generating a verification cache and the
// mining dataset. Every block of an epoch shares it.
func SeedHash(block uint64) types.Hash {
	var seed types.Hash
	if block < EpochLength {
		return seed
	}
	keccak256 := newKeccak256()
	for i := uint64(0); i < Epoch(block); i++ {
		keccak256(seed[:], seed[:])
	}
	return seed
}
