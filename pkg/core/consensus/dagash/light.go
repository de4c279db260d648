// Package dagash implements a memory-hard proof-of-work: a seed derived
// from the block height expands into a verification cache, the cache
// expands into a large dataset, and hashimoto mixes pseudo-random dataset
// items into a digest for every header hash and nonce.
//
// A Light handle holds only the cache and recomputes dataset items on
// demand. A Full handle holds the dataset, optionally memory mapped from a
// file written by an earlier run. Both produce bit-identical results.
package dagash

import (
	"fmt"
	"sync"

	"github.com/chronodrachma/dagpow/pkg/core/types"
)

// Light is a verification handle bound to the epoch of one block height.
type Light struct {
	block   uint64
	epoch   uint64
	seed    types.Hash
	dsize   uint64 // logical dataset size of the epoch
	cache   []byte
	mapped  *mapping
	outcome Outcome
	config  Config

	mu     sync.RWMutex
	closed bool
}

// NewLight builds, or loads from cfg.CacheDir, the verification cache for
// the epoch of block. No handle is returned when that fails.
func NewLight(block uint64, cfg Config) (*Light, error) {
	epoch := Epoch(block)
	csize, dsize := sizes(epoch, cfg.Test)
	seed := SeedHash(block)
	logger := cfg.logger().WithField("epoch", epoch)

	l := &Light{
		block:  block,
		epoch:  epoch,
		seed:   seed,
		dsize:  dsize,
		config: cfg,
	}
	generate := func(buf []byte) error {
		generateCache(buf, epoch, seed, logger)
		return nil
	}

	if cfg.CacheDir == "" {
		cache, err := allocate(csize)
		if err != nil {
			return nil, fmt.Errorf("allocating cache for epoch %d: %w", epoch, err)
		}
		generate(cache)
		l.cache, l.outcome = cache, OutcomeMismatch
		return l, nil
	}
	m, outcome, err := loadOrGenerate(FilePath(cfg.CacheDir, KindCache, seed, cfg.Test), KindCache, csize, logger, generate)
	if err != nil {
		return nil, fmt.Errorf("preparing cache for epoch %d: %w", epoch, err)
	}
	l.mapped, l.cache, l.outcome = m, m.data[MagicSize:], outcome
	return l, nil
}

// Compute runs hashimoto for header and nonce, recomputing every dataset
// item it touches from the cache. Success is false once l is closed.
func (l *Light) Compute(header types.Hash, nonce uint64) types.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return types.Result{}
	}
	digest, result := hashimotoLight(l.dsize, l.cache, header, nonce)
	return types.Result{Result: result, MixHash: digest, Success: true}
}

// Close releases the cache. It fails with ErrClosed when called twice.
func (l *Light) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.closed = true

	var err error
	if l.mapped != nil {
		err = l.mapped.close()
	}
	l.cache, l.mapped = nil, nil
	return err
}

// BlockNumber returns the block height the handle was created for.
func (l *Light) BlockNumber() uint64 { return l.block }

// Epoch returns the epoch of the handle.
func (l *Light) Epoch() uint64 { return l.epoch }

// SeedHash returns the seed the cache was derived from.
func (l *Light) SeedHash() types.Hash { return l.seed }

// DatasetSize returns the logical dataset size of the epoch in bytes.
func (l *Light) DatasetSize() uint64 { return l.dsize }

// Outcome reports whether the cache was loaded from disk (OutcomeMatch)
// or generated.
func (l *Light) Outcome() Outcome { return l.outcome }

// FilePath returns where the kind artifact of the handle's epoch is
// persisted, or "" when its config keeps that kind on the heap.
func (l *Light) FilePath(kind Kind) string {
	dir := l.config.CacheDir
	if kind == KindDataset {
		dir = l.config.DatasetDir
	}
	if dir == "" {
		return ""
	}
	return FilePath(dir, kind, l.seed, l.config.Test)
}

// Cache returns the raw cache for callers building dataset items
// themselves. The slice must not be written to, nor used after Close.
func (l *Light) Cache() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache
}

// CacheSize returns the cache length in bytes, or 0 once closed.
func (l *Light) CacheSize() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.cache))
}
