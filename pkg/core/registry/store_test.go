package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
)

func newTestStore(t *testing.T, path string) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(path, nil)
	require.NoError(t, err)
	return store
}

func TestSaveAndGetArtifact(t *testing.T) {
	store := newTestStore(t, "")
	defer store.Close()

	want := &Artifact{
		Kind:      dagash.KindDataset,
		Epoch:     3,
		Seed:      dagash.SeedHash(3 * dagash.EpochLength),
		Path:      "/tmp/full-R23-abc",
		Size:      1 << 20,
		CreatedAt: time.Date(2024, 5, 1, 12, 30, 0, 500, time.UTC),
	}
	require.NoError(t, store.SaveArtifact(want))

	got, err := store.GetArtifact(dagash.KindDataset, 3)
	require.NoError(t, err)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
	got.CreatedAt = want.CreatedAt
	require.Equal(t, want, got)

	_, err = store.GetArtifact(dagash.KindCache, 3)
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestListArtifactsOrdered(t *testing.T) {
	store := newTestStore(t, "")
	defer store.Close()

	for _, epoch := range []uint64{12, 2, 100, 7} {
		require.NoError(t, store.SaveArtifact(&Artifact{Kind: dagash.KindCache, Epoch: epoch}))
	}
	require.NoError(t, store.SaveArtifact(&Artifact{Kind: dagash.KindDataset, Epoch: 5}))

	caches, err := store.ListArtifacts(dagash.KindCache)
	require.NoError(t, err)
	var epochs []uint64
	for _, a := range caches {
		epochs = append(epochs, a.Epoch)
	}
	require.Equal(t, []uint64{2, 7, 12, 100}, epochs)

	datasets, err := store.ListArtifacts(dagash.KindDataset)
	require.NoError(t, err)
	require.Len(t, datasets, 1)
}

func TestDeleteArtifact(t *testing.T) {
	store := newTestStore(t, "")
	defer store.Close()

	require.NoError(t, store.SaveArtifact(&Artifact{Kind: dagash.KindCache, Epoch: 1}))
	require.NoError(t, store.DeleteArtifact(dagash.KindCache, 1))
	require.ErrorIs(t, store.DeleteArtifact(dagash.KindCache, 1), ErrArtifactNotFound)

	list, err := store.ListArtifacts(dagash.KindCache)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRegistryPersists(t *testing.T) {
	dir := t.TempDir()

	store := newTestStore(t, dir)
	require.NoError(t, store.SaveArtifact(&Artifact{Kind: dagash.KindDataset, Epoch: 9, Size: 42}))
	require.NoError(t, store.Close())

	reopened := newTestStore(t, dir)
	defer reopened.Close()
	got, err := reopened.GetArtifact(dagash.KindDataset, 9)
	require.NoError(t, err)
	require.EqualValues(t, 42, got.Size)
}
