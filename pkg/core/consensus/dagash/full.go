package dagash

import (
	"fmt"
	"sync"

	"github.com/chronodrachma/dagpow/pkg/core/types"
)

// Full is a mining handle holding the whole dataset of an epoch. It borrows
// the Light it was built from and never closes it.
type Full struct {
	light   *Light
	dataset []byte
	mapped  *mapping
	outcome Outcome

	mu     sync.RWMutex
	closed bool
}

// NewFull produces the dataset for light's epoch. When the light's config
// names a DatasetDir, a dataset persisted by an earlier run is reused if its
// size and magic match; otherwise the dataset is generated there (or on the
// heap without a directory), reporting to progress as it goes.
//
// A progress error stops the generation and NewFull returns an error
// wrapping ErrCancelled. A cancelled file is removed before it is ever
// installed under the canonical name.
func NewFull(light *Light, progress ProgressFunc) (*Full, error) {
	light.mu.RLock()
	defer light.mu.RUnlock()

	if light.closed {
		return nil, ErrClosed
	}
	cfg := light.config
	logger := cfg.logger().WithField("epoch", light.epoch)
	generate := timed(logger, light.dsize, func(buf []byte) error {
		return cfg.generator()(buf, light.cache, progress)
	})

	f := &Full{light: light}
	if cfg.DatasetDir == "" {
		dataset, err := allocate(light.dsize)
		if err != nil {
			return nil, fmt.Errorf("allocating dataset for epoch %d: %w", light.epoch, err)
		}
		if err := generate(dataset); err != nil {
			return nil, err
		}
		f.dataset, f.outcome = dataset, OutcomeMismatch
		return f, nil
	}
	m, outcome, err := loadOrGenerate(FilePath(cfg.DatasetDir, KindDataset, light.seed, cfg.Test), KindDataset, light.dsize, logger, generate)
	if err != nil {
		return nil, fmt.Errorf("preparing dataset for epoch %d: %w", light.epoch, err)
	}
	f.mapped, f.dataset, f.outcome = m, m.data[MagicSize:], outcome
	return f, nil
}

// Compute runs hashimoto for header and nonce against the dataset. Success
// is false once f is closed.
func (f *Full) Compute(header types.Hash, nonce uint64) types.Result {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return types.Result{}
	}
	digest, result := hashimotoFull(f.dataset, header, nonce)
	return types.Result{Result: result, MixHash: digest, Success: true}
}

// Close releases the dataset, unmapping it if it was file backed. The Light
// is left open.
func (f *Full) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	f.closed = true

	var err error
	if f.mapped != nil {
		err = f.mapped.close()
	}
	f.dataset, f.mapped = nil, nil
	return err
}

// DAG returns the raw dataset for callers running their own search loops.
// The slice must not be written to, nor used after Close.
func (f *Full) DAG() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dataset
}

// DAGSize returns the dataset length in bytes, or 0 once closed.
func (f *Full) DAGSize() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return uint64(len(f.dataset))
}

// Light returns the handle the dataset was built from.
func (f *Full) Light() *Light { return f.light }

// Outcome reports whether the dataset was loaded from disk (OutcomeMatch)
// or generated.
func (f *Full) Outcome() Outcome { return f.outcome }
