package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/dagpow/pkg/config"
	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/core/types"
	"github.com/chronodrachma/dagpow/pkg/testutil"
)

func testConfig() config.Config {
	return config.Config{
		CachesInMem:   2,
		DatasetsInMem: 1,
		PowMode:       config.ModeTest,
		Threads:       2,
	}
}

func newTestEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()
	e, err := New(cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestVerify(t *testing.T) {
	e := newTestEngine(t, testConfig())

	light, err := e.Cache(100)
	require.NoError(t, err)
	header := types.Hash{0x01, 0x02}
	res := light.Compute(header, 9)
	require.True(t, res.Success)

	seal := &types.Seal{Number: 100, HeaderHash: header, Nonce: 9, MixDigest: res.MixHash}
	require.NoError(t, e.Verify(seal, 0))
	require.NoError(t, e.Verify(seal, 1))

	bad := *seal
	bad.MixDigest[0] ^= 0xff
	require.ErrorIs(t, e.Verify(&bad, 0), ErrInvalidMixDigest)

	bad = *seal
	bad.Nonce++
	require.ErrorIs(t, e.Verify(&bad, 0), ErrInvalidMixDigest)

	// A target of 2^192 is met by a random result with probability 2^-64.
	require.ErrorIs(t, e.Verify(seal, ^uint64(0)), ErrInvalidPoW)

	_, err = e.Cache(dagash.MaxEpoch * dagash.EpochLength)
	require.ErrorIs(t, err, ErrEpochTooHigh)
}

func TestCacheReuseAndEviction(t *testing.T) {
	cfg := testConfig()
	cfg.CachesInMem = 1
	e := newTestEngine(t, cfg)

	first, err := e.Cache(0)
	require.NoError(t, err)
	again, err := e.Cache(29999)
	require.NoError(t, err)
	require.Same(t, first, again)

	next, err := e.Cache(dagash.EpochLength)
	require.NoError(t, err)
	require.EqualValues(t, 1, next.Epoch())
	require.Equal(t, 1, e.caches.len())

	// The evicted handle has been closed under its holder.
	require.False(t, first.Compute(types.ZeroHash, 0).Success)
	require.True(t, next.Compute(types.ZeroHash, 0).Success)

	// Verification of the old epoch regenerates it.
	res := next.Compute(types.ZeroHash, 0)
	require.ErrorIs(t, e.Verify(&types.Seal{Number: 0, MixDigest: res.MixHash}, 0), ErrInvalidMixDigest)
}

func TestFutureCachePregenerated(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDir = t.TempDir()
	cfg.CachesOnDisk = 5
	e := newTestEngine(t, cfg)

	_, err := e.Cache(0)
	require.NoError(t, err)
	e.wg.Wait()

	_, err = os.Stat(dagash.FilePath(cfg.CacheDir, dagash.KindCache, dagash.SeedHash(dagash.EpochLength), true))
	require.NoError(t, err, "next epoch cache should be on disk")

	light, err := e.Cache(dagash.EpochLength)
	require.NoError(t, err)
	assert.Equal(t, dagash.OutcomeMismatch, light.Outcome())
	e.wg.Wait()

	artifacts, err := e.Artifacts(dagash.KindCache)
	require.NoError(t, err)
	require.Len(t, artifacts, 3)
}

func TestFailedFutureCacheRebuilt(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDir = t.TempDir()
	e := newTestEngine(t, cfg)

	// A directory squatting on the next epoch's file fails its pregeneration.
	blocker := dagash.FilePath(cfg.CacheDir, dagash.KindCache, dagash.SeedHash(dagash.EpochLength), true)
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "x"), 0755))

	_, err := e.Cache(0)
	require.NoError(t, err)
	e.wg.Wait()

	require.NoError(t, os.RemoveAll(blocker))
	light, err := e.Cache(dagash.EpochLength)
	require.NoError(t, err)
	assert.Equal(t, dagash.OutcomeMismatch, light.Outcome())
	assert.True(t, light.Compute(types.ZeroHash, 0).Success)
}

func TestPruneOldFiles(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDir = t.TempDir()
	cfg.CachesInMem = 3
	cfg.CachesOnDisk = 5
	e := newTestEngine(t, cfg)

	_, err := e.Cache(0)
	require.NoError(t, err)
	_, err = e.Cache(dagash.EpochLength)
	require.NoError(t, err)
	e.wg.Wait()

	e.prune(dagash.KindCache, 2, 1)

	for epoch := uint64(0); epoch < 3; epoch++ {
		path := dagash.FilePath(cfg.CacheDir, dagash.KindCache, dagash.SeedHash(epoch*dagash.EpochLength), true)
		_, err := os.Stat(path)
		if epoch < 2 {
			assert.ErrorIs(t, err, os.ErrNotExist, "epoch %d", epoch)
		} else {
			assert.NoError(t, err, "epoch %d", epoch)
		}
	}
	artifacts, err := e.Artifacts(dagash.KindCache)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.EqualValues(t, 2, artifacts[0].Epoch)

	// Handles mapped before the unlink keep working.
	light, err := e.Cache(0)
	require.NoError(t, err)
	require.True(t, light.Compute(types.ZeroHash, 0).Success)
}

func TestDataset(t *testing.T) {
	cfg := testConfig()
	cfg.DatasetDir = t.TempDir()
	cfg.DatasetsOnDisk = 2
	e := newTestEngine(t, cfg)

	calls := 0
	full, err := e.Dataset(10, func(uint) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.NotZero(t, calls)
	require.Equal(t, dagash.OutcomeMismatch, full.Outcome())

	again, err := e.Dataset(20, nil)
	require.NoError(t, err)
	require.Same(t, full, again)

	light, err := e.Cache(10)
	require.NoError(t, err)
	for nonce := uint64(0); nonce < 8; nonce++ {
		require.Equal(t, light.Compute(types.ZeroHash, nonce), full.Compute(types.ZeroHash, nonce))
	}

	hasher, err := e.Hasher(10, true, nil)
	require.NoError(t, err)
	require.Same(t, consensus.Hasher(full), hasher)

	artifacts, err := e.Artifacts(dagash.KindDataset)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.EqualValues(t, full.DAGSize(), artifacts[0].Size)
}

func TestDatasetCancelled(t *testing.T) {
	e := newTestEngine(t, testConfig())

	_, err := e.Dataset(0, func(uint) error { return os.ErrDeadlineExceeded })
	require.ErrorIs(t, err, dagash.ErrCancelled)
	require.Zero(t, e.datasets.len())

	full, err := e.Dataset(0, nil)
	require.NoError(t, err)
	require.NotNil(t, full)
}

func TestFakeMode(t *testing.T) {
	cfg := testConfig()
	cfg.PowMode = config.ModeFake
	e := newTestEngine(t, cfg)

	require.NoError(t, e.Verify(&types.Seal{Number: 1 << 40}, ^uint64(0)))
	hasher, err := e.Hasher(0, true, nil)
	require.NoError(t, err)
	require.IsType(t, &consensus.FakeHasher{}, hasher)
	_, err = e.Cache(0)
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	e, err := New(testConfig(), testutil.NewTestLogger(t))
	require.NoError(t, err)
	light, err := e.Cache(0)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.ErrorIs(t, e.Close(), ErrEngineClosed)
	require.False(t, light.Compute(types.ZeroHash, 0).Success)

	_, err = e.Cache(0)
	require.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.Dataset(0, nil)
	require.ErrorIs(t, err, ErrEngineClosed)
}
