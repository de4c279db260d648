package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/testutil"
)

func TestLRUFuturePromotion(t *testing.T) {
	l := newLRU(dagash.KindCache, 2, testutil.NewTestLogger(t))

	_, future := l.get(0, true)
	require.NotNil(t, future)
	require.EqualValues(t, 1, future.epoch)

	current, _ := l.get(1, false)
	require.Same(t, future, current)
}

func TestLRUFailedFutureDropped(t *testing.T) {
	l := newLRU(dagash.KindCache, 2, testutil.NewTestLogger(t))
	boom := errors.New("boom")

	_, future := l.get(0, true)
	_, err := future.generate(func() (consensus.Hasher, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	// Still installed: the failed build is not promoted.
	current, _ := l.get(1, false)
	require.NotSame(t, future, current)
	l.remove(1)

	// Dropped: a later request starts from a fresh item.
	l.dropFuture(future)
	require.Nil(t, l.futureItem)
	current, _ = l.get(1, false)
	h, err := current.generate(func() (consensus.Hasher, error) { return consensus.NewFakeHasher(), nil })
	require.NoError(t, err)
	require.NotNil(t, h)
	l.purge()
}
