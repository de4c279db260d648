package dagash

import (
	"math/big"
)

const (
	// Revision is the data layout version baked into file names, so files
	// written by an incompatible layout never collide with current ones.
	Revision = 23

	DatasetInitBytes   = 1 << 30 // Bytes in dataset at genesis
	DatasetGrowthBytes = 1 << 23 // Dataset growth per epoch
	CacheInitBytes     = 1 << 24 // Bytes in cache at genesis
	CacheGrowthBytes   = 1 << 17 // Cache growth per epoch
	EpochLength        = 30000   // Blocks per epoch
	MixBytes           = 128     // Width of mix
	HashBytes          = 64      // Hash length in bytes
	HashWords          = 16      // Number of 32 bit ints in a hash
	DatasetParents     = 256     // Number of parents of each dataset element
	CacheRounds        = 3       // Number of rounds in cache production
	Accesses           = 64      // Number of accesses in hashimoto loop

	// MaxEpoch bounds the size schedule. Nothing is generated past it.
	MaxEpoch = 2048

	// Magic prefixes every persisted cache or dataset file.
	Magic     uint64 = 0xFEE1DEADBADDCAFE
	MagicSize        = 8

	// Sizes used when Config.Test is set.
	testCacheBytes   = 1024
	testDatasetBytes = 32 * 1024
)

// Epoch returns the epoch a block height belongs to.
func Epoch(block uint64) uint64 {
	return block / EpochLength
}

// CacheSize returns the cache size in bytes for an epoch. The item count is
// always prime so the cache rounds have no short cycles.
func CacheSize(epoch uint64) uint64 {
	size := CacheInitBytes + CacheGrowthBytes*epoch - HashBytes
	for !new(big.Int).SetUint64(size / HashBytes).ProbablyPrime(1) {
		size -= 2 * HashBytes
	}
	return size
}

// DatasetSize returns the dataset size in bytes for an epoch. The number of
// MixBytes-wide rows is always prime.
func DatasetSize(epoch uint64) uint64 {
	size := DatasetInitBytes + DatasetGrowthBytes*epoch - MixBytes
	for !new(big.Int).SetUint64(size / MixBytes).ProbablyPrime(1) {
		size -= 2 * MixBytes
	}
	return size
}

// sizes picks the cache and dataset sizes a handle should use.
func sizes(epoch uint64, test bool) (csize, dsize uint64) {
	if test {
		return testCacheBytes, testDatasetBytes
	}
	return CacheSize(epoch), DatasetSize(epoch)
}
