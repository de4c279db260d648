package engine

import (
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/sirupsen/logrus"

	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
)

// item is one cache or dataset slot. The handle is produced at most once;
// an item evicted before that closes the handle as soon as it arrives.
type item struct {
	epoch uint64
	once  sync.Once

	mu      sync.Mutex
	handle  consensus.Hasher
	err     error
	evicted bool
}

// generate runs build once and returns its result to every caller.
func (it *item) generate(build func() (consensus.Hasher, error)) (consensus.Hasher, error) {
	it.once.Do(func() {
		h, err := build()

		it.mu.Lock()
		it.handle, it.err = h, err
		evicted := it.evicted
		it.mu.Unlock()

		if evicted && h != nil {
			h.Close()
		}
	})
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.handle, it.err
}

// failed reports whether a finished build returned an error.
func (it *item) failed() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err != nil
}

// release closes the handle, now or once it has been generated.
func (it *item) release() {
	it.mu.Lock()
	it.evicted = true
	h := it.handle
	it.mu.Unlock()

	if h != nil {
		h.Close()
	}
}

// lru tracks caches or datasets by their last use time, keeping at most N
// of them. The item for the highest epoch seen plus one is kept aside as the
// future item.
type lru struct {
	kind   dagash.Kind
	logger *logrus.Entry

	mu         sync.Mutex
	cache      *simplelru.LRU
	future     uint64
	futureItem *item
}

func newLRU(kind dagash.Kind, maxItems int, logger *logrus.Entry) *lru {
	if maxItems <= 0 {
		maxItems = 1
	}
	l := &lru{kind: kind, logger: logger}
	l.cache, _ = simplelru.NewLRU(maxItems, func(key, value interface{}) {
		l.logger.WithField("epoch", key).Debugf("Evicted dagash %s", kind)
		value.(*item).release()
	})
	return l
}

// get retrieves or creates the item for epoch. The second item is non-nil
// when a new future item was set up and should be generated in the
// background.
func (l *lru) get(epoch uint64, wantFuture bool) (current, future *item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.cache.Get(epoch); ok {
		current = v.(*item)
	} else {
		if l.futureItem != nil && l.future == epoch && !l.futureItem.failed() {
			current = l.futureItem
			l.futureItem = nil
		} else {
			l.logger.WithField("epoch", epoch).Debugf("Requiring new dagash %s", l.kind)
			current = &item{epoch: epoch}
		}
		l.cache.Add(epoch, current)
	}
	if wantFuture && epoch < dagash.MaxEpoch-1 && l.future < epoch+1 {
		l.logger.WithField("epoch", epoch+1).Debugf("Requiring new future dagash %s", l.kind)
		if l.futureItem != nil {
			l.futureItem.release()
		}
		future = &item{epoch: epoch + 1}
		l.future = epoch + 1
		l.futureItem = future
	}
	return current, future
}

// dropFuture forgets it if it is still the future item, so the next request
// for its epoch builds afresh.
func (l *lru) dropFuture(it *item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.futureItem == it {
		l.futureItem = nil
	}
}

// remove drops the item for epoch, closing its handle.
func (l *lru) remove(epoch uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(epoch)
}

// purge closes every handle, the future one included.
func (l *lru) purge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Purge()
	if l.futureItem != nil {
		l.futureItem.release()
		l.futureItem = nil
	}
}

// len reports how many items are held, not counting the future item.
func (l *lru) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Len()
}
