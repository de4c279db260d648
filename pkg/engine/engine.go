// Package engine manages dagash caches and datasets for a node: it keeps the
// most recently used epochs in memory, pregenerates the next epoch's cache,
// tracks the files written to disk and verifies seals.
package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chronodrachma/dagpow/pkg/config"
	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/core/registry"
	"github.com/chronodrachma/dagpow/pkg/core/types"
)

var (
	ErrEngineClosed     = errors.New("engine is closed")
	ErrEpochTooHigh     = errors.New("block number beyond the last supported epoch")
	ErrInvalidMixDigest = errors.New("invalid mix digest")
	ErrInvalidPoW       = errors.New("invalid proof-of-work")
)

// Engine hands out light and full handles by block number.
type Engine struct {
	config   config.Config
	dagConf  dagash.Config
	logger   *logrus.Entry
	registry registry.ArtifactStore

	caches   *lru
	datasets *lru
	fake     *consensus.FakeHasher

	mu     sync.Mutex
	wg     sync.WaitGroup // background cache generation
	closed bool
}

// New creates an engine for cfg. The artifact registry is opened under
// cfg.RegistryDir, or kept in memory when that is empty.
func New(cfg config.Config, logger *logrus.Entry) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("module", "dagash")

	if cfg.PowMode == config.ModeFake {
		logger.Warn("Dagash used in fake mode")
		return &Engine{config: cfg, logger: logger, fake: consensus.NewFakeHasher()}, nil
	}
	if cfg.PowMode == config.ModeTest {
		logger.Warn("Dagash used in test mode")
	}
	if cfg.CacheDir != "" && !filepath.IsAbs(cfg.CacheDir) {
		logger.WithField("dir", cfg.CacheDir).Warn("Relative dagash cache directory")
	}

	store, err := registry.NewBadgerStore(cfg.RegistryDir, nil)
	if err != nil {
		return nil, err
	}
	dagConf := dagash.Config{
		CacheDir:   cfg.CacheDir,
		DatasetDir: cfg.DatasetDir,
		Test:       cfg.PowMode == config.ModeTest,
		Generator:  ParallelGenerator(cfg.Threads),
		Logger:     logger,
	}
	return &Engine{
		config:   cfg,
		dagConf:  dagConf,
		logger:   logger,
		registry: store,
		caches:   newLRU(dagash.KindCache, cfg.CachesInMem, logger),
		datasets: newLRU(dagash.KindDataset, cfg.DatasetsInMem, logger),
	}, nil
}

// Close waits for background generation, closes every handle and the
// registry.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	if e.fake != nil {
		return e.fake.Close()
	}
	e.caches.purge()
	e.datasets.purge()
	return e.registry.Close()
}

// Mode reports the proof-of-work mode the engine runs in.
func (e *Engine) Mode() config.Mode { return e.config.PowMode }

// Cache returns the verification handle for the epoch of block, generating
// it if needed. The handle stays owned by the engine: callers must not close
// it, and a handle evicted meanwhile reports Success=false from Compute.
func (e *Engine) Cache(block uint64) (*dagash.Light, error) {
	if e.fake != nil {
		return nil, fmt.Errorf("no caches in %s mode", e.config.PowMode)
	}
	epoch := dagash.Epoch(block)
	if epoch >= dagash.MaxEpoch {
		return nil, fmt.Errorf("%w: block %d", ErrEpochTooHigh, block)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	current, future := e.caches.get(epoch, true)
	if future != nil {
		e.wg.Add(1)
	}
	e.mu.Unlock()

	if future != nil {
		go func() {
			defer e.wg.Done()
			if _, err := future.generate(e.lightBuilder(future.epoch)); err != nil {
				e.caches.dropFuture(future)
				e.logger.WithError(err).WithField("epoch", future.epoch).Warn("Failed to pregenerate dagash cache")
			}
		}()
	}
	h, err := current.generate(e.lightBuilder(epoch))
	if err != nil {
		e.caches.remove(epoch)
		return nil, err
	}
	return h.(*dagash.Light), nil
}

// Dataset returns the mining handle for the epoch of block, generating the
// dataset on the calling goroutine if needed. Progress is only reported by
// the call that generates.
func (e *Engine) Dataset(block uint64, progress dagash.ProgressFunc) (*dagash.Full, error) {
	if e.fake != nil {
		return nil, fmt.Errorf("no datasets in %s mode", e.config.PowMode)
	}
	epoch := dagash.Epoch(block)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	current, _ := e.datasets.get(epoch, false)
	e.mu.Unlock()

	h, err := current.generate(func() (consensus.Hasher, error) {
		// The cache may be evicted between lookup and use; one retry gets a
		// fresh handle.
		for attempt := 0; ; attempt++ {
			light, err := e.Cache(block)
			if err != nil {
				return nil, err
			}
			full, err := dagash.NewFull(light, progress)
			if errors.Is(err, dagash.ErrClosed) && attempt == 0 {
				continue
			}
			if err != nil {
				return nil, err
			}
			e.record(dagash.KindDataset, light, full.Outcome())
			return full, nil
		}
	})
	if err != nil {
		e.datasets.remove(epoch)
		return nil, err
	}
	return h.(*dagash.Full), nil
}

// Hasher returns a hasher for block: the dataset when full is set, the cache
// otherwise, and a fake hasher in fake mode.
func (e *Engine) Hasher(block uint64, full bool, progress dagash.ProgressFunc) (consensus.Hasher, error) {
	if e.fake != nil {
		return e.fake, nil
	}
	if full {
		return e.Dataset(block, progress)
	}
	return e.Cache(block)
}

// Verify checks that seal carries a valid mix digest and meets difficulty.
// In fake mode every seal verifies.
func (e *Engine) Verify(seal *types.Seal, difficulty uint64) error {
	if e.fake != nil {
		return nil
	}
	var result types.Result
	for attempt := 0; attempt < 2 && !result.Success; attempt++ {
		light, err := e.Cache(seal.Number)
		if err != nil {
			return err
		}
		result = light.Compute(seal.HeaderHash, seal.Nonce)
	}
	if !result.Success {
		return fmt.Errorf("verifying block %d: %w", seal.Number, dagash.ErrClosed)
	}
	if result.MixHash != seal.MixDigest {
		return ErrInvalidMixDigest
	}
	if !consensus.MeetsDifficulty(result.Result, difficulty) {
		return ErrInvalidPoW
	}
	return nil
}

// lightBuilder returns the generation function of the epoch's cache item.
func (e *Engine) lightBuilder(epoch uint64) func() (consensus.Hasher, error) {
	return func() (consensus.Hasher, error) {
		light, err := dagash.NewLight(epoch*dagash.EpochLength, e.dagConf)
		if err != nil {
			return nil, err
		}
		e.record(dagash.KindCache, light, light.Outcome())
		return light, nil
	}
}
