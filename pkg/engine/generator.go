package engine

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
)

// generatorBatch is how many items a worker builds between progress and
// abort checks.
const generatorBatch = 1024

// pollInterval is how often the calling goroutine samples worker progress.
var pollInterval = 5 * time.Millisecond

// ParallelGenerator returns a dataset generator that splits the item range
// across threads goroutines (all CPUs when threads <= 0). Progress callbacks
// always run on the goroutine that called the generator, starting with 0
// before any item is built; a callback error stops every worker and the
// generator returns an error wrapping dagash.ErrCancelled.
func ParallelGenerator(threads int) dagash.Generator {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return func(dest, cache []byte, progress dagash.ProgressFunc) error {
		total := uint32(len(dest) / dagash.HashBytes)
		if threads == 1 || total < uint32(threads) {
			return dagash.GenerateDataset(dest, cache, progress)
		}
		if progress == nil {
			progress = func(uint) error { return nil }
		}
		if err := progress(0); err != nil {
			return fmt.Errorf("%w before the first item: %w", dagash.ErrCancelled, err)
		}

		var (
			done    atomic.Uint64
			abort   atomic.Bool
			pending sync.WaitGroup
		)
		chunk := (total + uint32(threads) - 1) / uint32(threads)
		for i := 0; i < threads; i++ {
			first := uint32(i) * chunk
			if first >= total {
				break
			}
			limit := min(first+chunk, total)

			pending.Add(1)
			go func(first, limit uint32) {
				defer pending.Done()
				for start := first; start < limit; start += generatorBatch {
					if abort.Load() {
						return
					}
					end := min(start+generatorBatch, limit)
					dagash.GenerateDatasetRange(dest, cache, start, end)
					done.Add(uint64(end - start))
				}
			}(first, limit)
		}

		finished := make(chan struct{})
		go func() {
			pending.Wait()
			close(finished)
		}()

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		var reported uint
		for {
			select {
			case <-finished:
				return nil
			case <-ticker.C:
				count := done.Load()
				if count >= uint64(total) {
					continue
				}
				percent := dagash.Percent(count, uint64(total))
				if percent == reported {
					continue
				}
				reported = percent
				if err := progress(percent); err != nil {
					abort.Store(true)
					<-finished
					return fmt.Errorf("%w at item %d: %w", dagash.ErrCancelled, count, err)
				}
			}
		}
	}
}
