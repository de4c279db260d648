package miner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/core/types"
	"github.com/chronodrachma/dagpow/pkg/testutil"
)

type SlowHasher struct {
	inner consensus.Hasher
	delay time.Duration
}

func (h *SlowHasher) Compute(header types.Hash, nonce uint64) types.Result {
	time.Sleep(h.delay)
	return h.inner.Compute(header, nonce)
}

func (h *SlowHasher) Close() error {
	return h.inner.Close()
}

func TestMiner_SearchFake(t *testing.T) {
	hasher := consensus.NewFakeHasher()
	defer hasher.Close()

	m := NewMiner(hasher, 4, testutil.NewTestLogger(t))
	work := Work{Number: 7, HeaderHash: types.Hash{0xaa}, Difficulty: 1 << 12}

	seal, err := m.Search(context.Background(), work)
	require.NoError(t, err)
	require.Equal(t, work.Number, seal.Number)
	require.Equal(t, work.HeaderHash, seal.HeaderHash)

	res := hasher.Compute(seal.HeaderHash, seal.Nonce)
	require.Equal(t, res.MixHash, seal.MixDigest)
	require.True(t, consensus.MeetsDifficulty(res.Result, work.Difficulty))
	require.NotZero(t, m.Hashes())
	require.Greater(t, m.Hashrate(), 0.0)
}

func TestMiner_SearchDataset(t *testing.T) {
	light, err := dagash.NewLight(0, dagash.Config{Test: true, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	defer light.Close()
	full, err := dagash.NewFull(light, nil)
	require.NoError(t, err)
	defer full.Close()

	m := NewMiner(full, 2, testutil.NewTestLogger(t))
	work := Work{Number: 0, HeaderHash: types.Hash{0x11, 0x22}, Difficulty: 64}
	seal, err := m.Search(context.Background(), work)
	require.NoError(t, err)

	// A verifier holding only the cache accepts the seal.
	res := light.Compute(seal.HeaderHash, seal.Nonce)
	require.Equal(t, res.MixHash, seal.MixDigest)
	require.True(t, consensus.MeetsDifficulty(res.Result, work.Difficulty))
}

func TestMiner_SearchCancelled(t *testing.T) {
	hasher := &SlowHasher{inner: consensus.NewFakeHasher(), delay: time.Millisecond}
	m := NewMiner(hasher, 2, testutil.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	seal, err := m.Search(ctx, Work{HeaderHash: types.Hash{0x01}, Difficulty: ^uint64(0)})
	require.Nil(t, seal)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMiner_HasherClosed(t *testing.T) {
	hasher := consensus.NewFakeHasher()
	require.NoError(t, hasher.Close())

	m := NewMiner(hasher, 2, testutil.NewTestLogger(t))
	_, err := m.Search(context.Background(), Work{Difficulty: 1})
	require.ErrorIs(t, err, ErrHasherClosed)
}

func TestMiner_WorkUpdate(t *testing.T) {
	// Slow hasher so the first package is still being searched when it is
	// replaced.
	hasher := &SlowHasher{inner: consensus.NewFakeHasher(), delay: time.Millisecond}
	m := NewMiner(hasher, 2, testutil.NewTestLogger(t))
	m.Start()
	defer m.Stop()

	m.SetWork(Work{Number: 1, HeaderHash: types.Hash{0x01}, Difficulty: ^uint64(0)})
	time.Sleep(20 * time.Millisecond)

	// Difficulty 0 accepts the first nonce tried.
	next := Work{Number: 2, HeaderHash: types.Hash{0x02}, Difficulty: 0}
	m.SetWork(next)

	select {
	case seal := <-m.Found():
		require.Equal(t, next.Number, seal.Number)
		require.Equal(t, next.HeaderHash, seal.HeaderHash)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a seal")
	}
}

func TestMiner_StopTwice(t *testing.T) {
	m := NewMiner(consensus.NewFakeHasher(), 1, testutil.NewTestLogger(t))
	m.Start()

	require.NotPanics(t, func() {
		m.Stop()
		m.Stop()
	})

	// SetWork after Stop must not block.
	done := make(chan struct{})
	go func() {
		m.SetWork(Work{Number: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetWork blocked on a stopped miner")
	}
}
