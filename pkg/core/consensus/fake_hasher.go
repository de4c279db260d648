package consensus

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/chronodrachma/dagpow/pkg/core/types"
)

// FakeHasher implements Hasher using double-SHA256 of header || nonce.
// Used in tests and in fake mode to avoid building a cache or dataset.
type FakeHasher struct {
	closed atomic.Bool
}

var _ Hasher = (*FakeHasher)(nil)

// NewFakeHasher returns a new FakeHasher.
func NewFakeHasher() *FakeHasher {
	return &FakeHasher{}
}

// Compute returns SHA256(SHA256(header || nonce)) as the result and the
// first round as the mix digest.
func (h *FakeHasher) Compute(header types.Hash, nonce uint64) types.Result {
	if h.closed.Load() {
		return types.Result{}
	}
	var buf [types.HashSize + 8]byte
	copy(buf[:], header[:])
	binary.LittleEndian.PutUint64(buf[types.HashSize:], nonce)

	first := types.ComputeSHA256(buf[:])
	second := types.ComputeSHA256(first[:])
	return types.Result{Result: second, MixHash: first, Success: true}
}

// Close marks the hasher closed. Later computes report no success.
func (h *FakeHasher) Close() error {
	h.closed.Store(true)
	return nil
}
