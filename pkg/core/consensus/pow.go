package consensus

import (
	"math/big"

	"github.com/chronodrachma/dagpow/pkg/core/types"
)

// Hasher computes proof-of-work results for a header hash and nonce.
// Implementations include *dagash.Light and *dagash.Full (production) and
// FakeHasher (testing, no dataset).
type Hasher interface {
	// Compute runs the proof-of-work function. Result.Success is false when
	// the hasher has already been closed.
	Compute(header types.Hash, nonce uint64) types.Result

	// Close releases any resources held by the hasher.
	Close() error
}

// MeetsDifficulty checks whether a proof-of-work result satisfies the given
// difficulty: read as a big-endian 256-bit integer, the result must not
// exceed 2^256 / difficulty.
// difficulty=0 and difficulty=1 accept any result.
func MeetsDifficulty(result types.Hash, difficulty uint64) bool {
	if difficulty <= 1 {
		return true
	}
	return result.Big().Cmp(TargetForDifficulty(difficulty)) <= 0
}

// MeetsTarget checks a result against a precomputed target, so search loops
// avoid the division for every nonce.
func MeetsTarget(result types.Hash, target *big.Int) bool {
	return result.Big().Cmp(target) <= 0
}
