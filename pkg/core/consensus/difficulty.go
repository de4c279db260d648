package consensus

import (
	"math/big"
	"time"
)

// two256 is 2^256, one past the largest proof-of-work result.
var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// maxTarget is the target of difficulty 1: every result passes.
var maxTarget = new(big.Int).Sub(two256, big.NewInt(1))

// TargetForDifficulty returns 2^256 / difficulty, the largest result a
// valid seal may have. Difficulties 0 and 1 map to 2^256 - 1.
func TargetForDifficulty(difficulty uint64) *big.Int {
	if difficulty <= 1 {
		return new(big.Int).Set(maxTarget)
	}
	return new(big.Int).Div(two256, new(big.Int).SetUint64(difficulty))
}

// MaxRetargetFactor bounds how far one Retarget moves the difficulty in
// either direction.
const MaxRetargetFactor = 4

// Retarget scales difficulty so that a search which took actual would take
// expected, moving it by at most MaxRetargetFactor. Difficulty never drops
// below 1.
//
// NewDifficulty = OldDifficulty * (expected / actual)
func Retarget(difficulty uint64, actual, expected time.Duration) uint64 {
	if actual <= 0 {
		actual = 1
	}
	switch {
	case actual < expected/MaxRetargetFactor:
		actual = expected / MaxRetargetFactor
	case actual/MaxRetargetFactor > expected:
		actual = expected * MaxRetargetFactor
	}
	if actual <= 0 {
		actual = 1
	}
	scaled := new(big.Int).SetUint64(difficulty)
	scaled.Mul(scaled, big.NewInt(int64(expected)))
	scaled.Div(scaled, big.NewInt(int64(actual)))

	if scaled.Cmp(big.NewInt(1)) < 0 {
		return 1
	}
	if !scaled.IsUint64() {
		return ^uint64(0)
	}
	return scaled.Uint64()
}
