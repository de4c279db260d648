// Package miner searches nonces for dagash work packages.
package miner

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/types"
)

var (
	ErrHasherClosed = errors.New("miner: hasher closed during search")
)

// checkInterval is how many nonces a worker tries between context checks.
const checkInterval = 1 << 8

// Work is one sealing task: find a nonce for HeaderHash at block Number
// whose result meets Difficulty.
type Work struct {
	Number     uint64
	HeaderHash types.Hash
	Difficulty uint64
}

type Miner struct {
	hasher  consensus.Hasher // Light, Full or fake; Full is what makes mining fast
	threads int
	logger  *logrus.Entry

	hashes  atomic.Uint64
	elapsed atomic.Int64 // nanoseconds spent searching

	work  chan Work
	found chan *types.Seal
	quit  chan struct{}
	stop  sync.Once
	wg    sync.WaitGroup
}

// NewMiner creates a miner running threads workers (all CPUs when
// threads <= 0) over hasher.
func NewMiner(hasher consensus.Hasher, threads int, logger *logrus.Entry) *Miner {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Miner{
		hasher:  hasher,
		threads: threads,
		logger:  logger.WithField("module", "miner"),
		work:    make(chan Work),
		found:   make(chan *types.Seal, 1),
		quit:    make(chan struct{}),
	}
}

// Search tries nonces for work until one meets the difficulty, ctx is done
// or the hasher is closed. Each worker starts from a random nonce and the
// first solution stops the others.
func (m *Miner) Search(ctx context.Context, work Work) (*types.Seal, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	target := consensus.TargetForDifficulty(work.Difficulty)
	start := time.Now()
	defer func() { m.elapsed.Add(int64(time.Since(start))) }()

	var (
		wg     sync.WaitGroup
		once   sync.Once
		seal   *types.Seal
		closed atomic.Bool
	)
	for i := 0; i < m.threads; i++ {
		wg.Add(1)
		go func(nonce uint64) {
			defer wg.Done()
			var attempts uint64
			defer func() { m.hashes.Add(attempts) }()

			for {
				if attempts%checkInterval == 0 && ctx.Err() != nil {
					return
				}
				res := m.hasher.Compute(work.HeaderHash, nonce)
				attempts++
				if !res.Success {
					closed.Store(true)
					cancel()
					return
				}
				if consensus.MeetsTarget(res.Result, target) {
					once.Do(func() {
						seal = &types.Seal{
							Number:     work.Number,
							HeaderHash: work.HeaderHash,
							Nonce:      nonce,
							MixDigest:  res.MixHash,
						}
						cancel()
					})
					return
				}
				nonce++
			}
		}(rand.Uint64())
	}
	wg.Wait()

	switch {
	case seal != nil:
		m.logger.WithFields(logrus.Fields{
			"number": work.Number,
			"nonce":  seal.Nonce,
		}).Debug("Found seal")
		return seal, nil
	case closed.Load():
		return nil, ErrHasherClosed
	default:
		return nil, ctx.Err()
	}
}

// Hashrate returns the average hashes per second over every search so far.
func (m *Miner) Hashrate() float64 {
	elapsed := time.Duration(m.elapsed.Load())
	if elapsed <= 0 {
		return 0
	}
	return float64(m.hashes.Load()) / elapsed.Seconds()
}

// Hashes returns the total number of nonces tried.
func (m *Miner) Hashes() uint64 { return m.hashes.Load() }

// Start runs the sealing loop: every work package passed to SetWork replaces
// the one being searched, and seals come out of Found.
func (m *Miner) Start() {
	m.logger.WithField("threads", m.threads).Info("Miner started")
	m.wg.Add(1)
	go m.miningLoop()
}

// Stop ends the sealing loop and waits for the workers. Further calls do
// nothing.
func (m *Miner) Stop() {
	m.stop.Do(func() {
		close(m.quit)
		m.wg.Wait()
		m.logger.WithField("hashrate", m.Hashrate()).Info("Miner stopped")
	})
}

// SetWork hands a new work package to the running loop.
func (m *Miner) SetWork(work Work) {
	select {
	case m.work <- work:
	case <-m.quit:
	}
}

// Found delivers the seals the loop finds.
func (m *Miner) Found() <-chan *types.Seal { return m.found }

func (m *Miner) miningLoop() {
	defer m.wg.Done()

	var (
		cancel = func() {}
		search sync.WaitGroup
	)
	defer func() {
		cancel()
		search.Wait()
	}()

	for {
		select {
		case <-m.quit:
			return
		case work := <-m.work:
			// Abandon the previous package before starting on the new one.
			cancel()
			search.Wait()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			search.Add(1)
			go func() {
				defer search.Done()
				seal, err := m.Search(ctx, work)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						m.logger.WithError(err).Warn("Search failed")
					}
					return
				}
				select {
				case m.found <- seal:
				case <-ctx.Done():
				}
			}()
		}
	}
}
