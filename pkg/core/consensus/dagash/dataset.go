package dagash

import (
	"encoding/binary"
	"fmt"
)

// ProgressFunc receives the completion percentage of a dataset generation
// in [0, 100]. It is called before every 1% of items, starting with 0.
// Returning a non-nil error stops the generation, which then fails with
// ErrCancelled.
//
// 100 means the generation is almost complete, not that it has finished:
// only a successful return from the builder guarantees the dataset is whole.
type ProgressFunc func(percent uint) error

// Generator fills dest with the dataset items derived from cache.
type Generator func(dest, cache []byte, progress ProgressFunc) error

// ItemBuilder computes individual dataset items from a cache. Every item
// depends only on the cache and its index, so items may be built in any
// order. An ItemBuilder is not safe for concurrent use; make one per
// goroutine.
type ItemBuilder struct {
	cache     []byte
	rows      uint32
	keccak512 hasher
	parent    [HashWords]uint32
}

// NewItemBuilder returns a builder reading from cache.
func NewItemBuilder(cache []byte) *ItemBuilder {
	return &ItemBuilder{
		cache:     cache,
		rows:      uint32(len(cache) / HashBytes),
		keccak512: newKeccak512(),
	}
}

// Build writes dataset item index into dst[:HashBytes]. It combines data
// from DatasetParents pseudo-randomly selected cache items.
func (b *ItemBuilder) Build(dst []byte, index uint32) {
	mix := dst[:HashBytes]

	// Initialize the mix from the cache, decorrelated by the index
	copy(mix, b.cache[(index%b.rows)*HashBytes:])
	binary.LittleEndian.PutUint32(mix, binary.LittleEndian.Uint32(mix)^index)
	b.keccak512(mix, mix)

	// Convert the mix to uint32s to avoid constant bit shifting
	var intMix [HashWords]uint32
	for i := range intMix {
		intMix[i] = binary.LittleEndian.Uint32(mix[i*4:])
	}
	// fnv it with a lot of random cache nodes based on index
	for i := uint32(0); i < DatasetParents; i++ {
		parent := fnv(index^i, intMix[i%HashWords]) % b.rows
		offset := parent * HashWords
		for w := range b.parent {
			b.parent[w] = word(b.cache, offset+uint32(w))
		}
		fnvHash(intMix[:], b.parent[:])
	}
	// Flatten the uint32 mix into a binary one and hash it
	for i, val := range intMix {
		binary.LittleEndian.PutUint32(mix[i*4:], val)
	}
	b.keccak512(mix, mix)
}

// GenerateDatasetRange builds items [first, limit) into dest, which must
// cover the whole dataset. Concurrent callers with disjoint ranges need no
// further synchronization.
func GenerateDatasetRange(dest, cache []byte, first, limit uint32) {
	builder := NewItemBuilder(cache)
	for index := first; index < limit; index++ {
		builder.Build(dest[uint64(index)*HashBytes:], index)
	}
}

// GenerateDataset is the default Generator. It builds every item on the
// calling goroutine, invoking progress between items.
func GenerateDataset(dest, cache []byte, progress ProgressFunc) error {
	items := uint32(len(dest) / HashBytes)
	step := items / 100
	if step == 0 {
		step = 1
	}
	builder := NewItemBuilder(cache)
	for index := uint32(0); index < items; index++ {
		if progress != nil && index%step == 0 {
			if err := progress(Percent(uint64(index), uint64(items))); err != nil {
				return fmt.Errorf("%w at item %d: %w", ErrCancelled, index, err)
			}
		}
		builder.Build(dest[uint64(index)*HashBytes:], index)
	}
	return nil
}

// Percent rounds done/total up to a whole percentage.
func Percent(done, total uint64) uint {
	if total == 0 {
		return 100
	}
	return uint((done*100 + total - 1) / total)
}
