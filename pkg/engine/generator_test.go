package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/testutil"
)

func testCache(t *testing.T) *dagash.Light {
	light, err := dagash.NewLight(0, dagash.Config{Test: true, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { light.Close() })
	return light
}

func TestParallelGeneratorMatchesSequential(t *testing.T) {
	light := testCache(t)
	full, err := dagash.NewFull(light, nil)
	require.NoError(t, err)
	defer full.Close()

	for _, threads := range []int{1, 3, 8} {
		dest := make([]byte, full.DAGSize())
		var seen []uint
		err := ParallelGenerator(threads)(dest, light.Cache(), func(percent uint) error {
			seen = append(seen, percent)
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, full.DAG(), dest, "threads=%d", threads)

		require.NotEmpty(t, seen)
		require.EqualValues(t, 0, seen[0])
		for i := 1; i < len(seen); i++ {
			require.GreaterOrEqual(t, seen[i], seen[i-1])
			require.LessOrEqual(t, seen[i], uint(100))
		}
	}
}

func TestParallelGeneratorCancel(t *testing.T) {
	light := testCache(t)
	stop := errors.New("stop")

	dest := make([]byte, light.DatasetSize())
	calls := 0
	err := ParallelGenerator(4)(dest, light.Cache(), func(uint) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, dagash.ErrCancelled)
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}
